package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const oggPageDuration = 20 * time.Millisecond

// FileCapturer plays media files as capture devices: audio from an Ogg/Opus
// file and video from an IVF (VP8 or VP9) file. Files loop until stopped.
type FileCapturer struct {
	AudioPath string
	VideoPath string
	Logger    *slog.Logger
}

func (f *FileCapturer) Capture(ctx context.Context, kind Kind, streamID string) (*Capture, error) {
	switch kind {
	case KindAudio:
		return f.captureAudio(ctx, streamID)
	case KindVideo:
		return f.captureVideo(ctx, streamID)
	}
	return nil, &DeviceError{Kind: kind, Err: fmt.Errorf("unsupported kind %q", kind)}
}

func (f *FileCapturer) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f *FileCapturer) captureAudio(ctx context.Context, streamID string) (*Capture, error) {
	if f.AudioPath == "" {
		return nil, &DeviceError{Kind: KindAudio, Err: errors.New("no audio source configured")}
	}
	file, err := os.Open(f.AudioPath)
	if err != nil {
		return nil, &DeviceError{Kind: KindAudio, Err: err}
	}
	ogg, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, &DeviceError{Kind: KindAudio, Err: fmt.Errorf("read ogg header: %w", err)}
	}

	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		file.Close()
		return nil, &DeviceError{Kind: KindAudio, Err: err}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer file.Close()
		f.playOgg(stop, file, ogg, track)
	}()

	return NewCapture([]pion.TrackLocal{track}, func() {
		close(stop)
		<-done
	}), nil
}

func (f *FileCapturer) playOgg(stop <-chan struct{}, file *os.File, ogg *oggreader.OggReader, track *pion.TrackLocalStaticSample) {
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				f.logger().Warn("rewind audio source", "error", err)
				return
			}
			if ogg, _, err = oggreader.NewWith(file); err != nil {
				f.logger().Warn("reopen audio source", "error", err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			f.logger().Warn("read audio page", "error", err)
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples)/48000*1000) * time.Millisecond
		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			f.logger().Debug("write audio sample", "error", err)
		}
	}
}

func (f *FileCapturer) captureVideo(ctx context.Context, streamID string) (*Capture, error) {
	if f.VideoPath == "" {
		return nil, &DeviceError{Kind: KindVideo, Err: errors.New("no video source configured")}
	}
	file, err := os.Open(f.VideoPath)
	if err != nil {
		return nil, &DeviceError{Kind: KindVideo, Err: err}
	}
	ivf, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, &DeviceError{Kind: KindVideo, Err: fmt.Errorf("read ivf header: %w", err)}
	}

	var mime string
	switch header.FourCC {
	case "VP80":
		mime = pion.MimeTypeVP8
	case "VP90":
		mime = pion.MimeTypeVP9
	default:
		file.Close()
		return nil, &DeviceError{Kind: KindVideo, Err: fmt.Errorf("unsupported ivf codec %q", header.FourCC)}
	}

	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		file.Close()
		return nil, &DeviceError{Kind: KindVideo, Err: err}
	}

	frameDuration := 33 * time.Millisecond
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer file.Close()
		f.playIVF(stop, file, ivf, track, frameDuration)
	}()

	return NewCapture([]pion.TrackLocal{track}, func() {
		close(stop)
		<-done
	}), nil
}

func (f *FileCapturer) playIVF(stop <-chan struct{}, file *os.File, ivf *ivfreader.IVFReader, track *pion.TrackLocalStaticSample, frameDuration time.Duration) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				f.logger().Warn("rewind video source", "error", err)
				return
			}
			if ivf, _, err = ivfreader.NewWith(file); err != nil {
				f.logger().Warn("reopen video source", "error", err)
				return
			}
			continue
		}
		if err != nil {
			f.logger().Warn("read video frame", "error", err)
			return
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			f.logger().Debug("write video sample", "error", err)
		}
	}
}
