package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BioHazard786/warpmesh/internal/media"
	"github.com/BioHazard786/warpmesh/internal/mesh"
	"github.com/BioHazard786/warpmesh/internal/roster"
	"github.com/BioHazard786/warpmesh/internal/transfer"
	"github.com/BioHazard786/warpmesh/internal/ui"
	"github.com/BioHazard786/warpmesh/internal/utils"
	"github.com/spf13/cobra"
)

var (
	flagOutDir    string
	flagAudioFile string
	flagVideoFile string
	flagRecordDir string
)

var joinCmd = &cobra.Command{
	Use:     "join [room-id|url]",
	Aliases: []string{"j"},
	Short:   "Join a room and stay connected to every peer in it",
	Long: `Join a room, or create a new one when no room is given, and stay in the mesh
until you press q. Files sent by any peer are saved to --out. Audio and video
can be published from media files and remote media can be recorded.

Examples:
  warpmesh join
  warpmesh join ABC123 --out ~/Downloads
  warpmesh join https://warpdrop.qzz.io/r/ABC123 --audio talk.ogg --video cam.ivf
  warpmesh join ABC123 --record ./recordings`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := newRoomID()
		if len(args) == 1 {
			var err error
			if roomID, err = parseRoomInput(args[0]); err != nil {
				return err
			}
		}
		return joinRoom(cmd.Context(), roomID)
	},
}

// roomView merges roster and link updates into dashboard rows.
type roomView struct {
	mu           sync.Mutex
	participants []roster.Participant
	links        []mesh.LinkInfo
	dashboard    *ui.Dashboard
}

func (v *roomView) setParticipants(ps []roster.Participant) {
	v.mu.Lock()
	v.participants = ps
	rows := peerRows(v.participants, v.links)
	v.mu.Unlock()
	v.dashboard.SetPeers(rows)
}

func (v *roomView) setLinks(links []mesh.LinkInfo) {
	v.mu.Lock()
	v.links = links
	rows := peerRows(v.participants, v.links)
	v.mu.Unlock()
	v.dashboard.SetPeers(rows)
}

func peerRows(participants []roster.Participant, links []mesh.LinkInfo) []ui.PeerRow {
	byID := make(map[string]mesh.LinkInfo, len(links))
	for _, l := range links {
		byID[l.RemoteID] = l
	}

	rows := make([]ui.PeerRow, 0, len(participants))
	for _, p := range participants {
		row := ui.PeerRow{ClientID: p.ClientID, DisplayName: p.DisplayName}
		if l, ok := byID[p.ClientID]; ok {
			row.Link = l.State.String()
			row.Role = l.Role.String()
			row.ChannelOpen = l.ChannelOpen
		}
		if p.RemoteStream != nil {
			for _, t := range p.RemoteStream.Tracks {
				row.Media = append(row.Media, t.Kind)
			}
			sort.Strings(row.Media)
		}
		rows = append(rows, row)
	}
	return rows
}

// saveReceivedFile writes f into dir without overwriting existing files.
func saveReceivedFile(dir string, f transfer.ReceivedFile) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", transfer.NewError("create output dir", err)
		}
	}
	path := utils.GetUniqueFilename(filepath.Join(dir, utils.SafeFilename(f.Name)))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", transfer.NewFileError("save file", f.Name, err)
	}
	return path, nil
}

// fileSaver writes received files from its own goroutines so the mesh loop
// never waits on the disk. Writes are serialized to keep names unique.
type fileSaver struct {
	dir     string
	onSaved func(f transfer.ReceivedFile, path string, err error)

	mu sync.Mutex
	wg sync.WaitGroup
}

func (s *fileSaver) Save(f transfer.ReceivedFile) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mu.Lock()
		path, err := saveReceivedFile(s.dir, f)
		s.mu.Unlock()
		if s.onSaved != nil {
			s.onSaved(f, path, err)
		}
	}()
}

// Wait blocks until every queued file is written.
func (s *fileSaver) Wait() {
	s.wg.Wait()
}

func joinRoom(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dashboard := ui.NewDashboard(roomID, cfg.RoomLink(roomID), cfg.ClientID)
	view := &roomView{dashboard: dashboard}

	var recorder *media.Recorder
	if flagRecordDir != "" {
		if err := os.MkdirAll(flagRecordDir, 0o755); err != nil {
			return transfer.NewError("create record dir", err)
		}
		recorder = &media.Recorder{Dir: flagRecordDir}
	}

	var names sync.Map
	nameOf := func(id string) string {
		if n, ok := names.Load(id); ok {
			return n.(string)
		}
		return roster.DefaultName(id)
	}

	saver := &fileSaver{
		dir: flagOutDir,
		onSaved: func(f transfer.ReceivedFile, path string, err error) {
			if err != nil {
				dashboard.Event("%s %v", ui.IconError, err)
				return
			}
			dashboard.Event("%s %s (%s) from %s saved to %s",
				ui.IconReceive, f.Name, utils.FormatSize(f.Size), nameOf(f.Sender), path)
		},
	}
	// Runs after session.Close, once no more files can arrive.
	defer saver.Wait()

	stopSpinner := ui.RunSpinner("Connecting to server...")
	session, err := StartSession(ctx, cfg, roomID, SessionOptions{
		OnParticipantUpdate: func(ps []roster.Participant) {
			for _, p := range ps {
				names.Store(p.ClientID, p.DisplayName)
			}
			view.setParticipants(ps)
		},
		OnLinkUpdate: view.setLinks,
		OnIncomingProgress: func(p transfer.IncomingProgress) {
			dashboard.SetIncoming(ui.IncomingRow{
				ID:       p.ID,
				Name:     p.Name,
				From:     nameOf(p.From),
				Received: p.Received,
				Total:    p.TotalChunks,
			})
		},
		OnFileReceived: saver.Save,
		OnRemoteTrack: func(peerID string, track mesh.TrackInfo) {
			icon := ui.IconAudio
			if track.Kind == string(media.KindVideo) {
				icon = ui.IconVideo
			}
			dashboard.Event("%s %s is sending %s", icon, nameOf(peerID), track.Kind)
			if recorder != nil && track.Remote != nil {
				go func() {
					if err := recorder.Record(peerID, track.Remote); err != nil {
						slog.Warn("recording stopped", "peer", peerID, "error", err)
					}
				}()
			}
		},
	})
	stopSpinner()
	if err != nil {
		return err
	}
	defer session.Close()

	publisher := media.NewPublisher(&media.FileCapturer{AudioPath: flagAudioFile, VideoPath: flagVideoFile}, session.Mesh, nil)
	defer publisher.Close()

	dashboard.Start(cancel)
	defer dashboard.Stop()

	if flagAudioFile != "" {
		if err := publisher.StartAudio(ctx); err != nil {
			dashboard.Event("%s %v", ui.IconWarning, err)
		}
	}
	if flagVideoFile != "" {
		if err := publisher.StartVideo(ctx); err != nil {
			dashboard.Event("%s %v", ui.IconWarning, err)
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-session.Errors():
		return fmt.Errorf("lost relay connection: %w", err)
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagOutDir, "out", "o", "", "Directory to save received files")
	joinCmd.Flags().StringVar(&flagAudioFile, "audio", "", "Publish audio from an Ogg/Opus file")
	joinCmd.Flags().StringVar(&flagVideoFile, "video", "", "Publish video from an IVF (VP8/VP9) file")
	joinCmd.Flags().StringVar(&flagRecordDir, "record", "", "Record remote media into this directory")
}
