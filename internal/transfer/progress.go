package transfer

import (
	"fmt"
	"time"

	"github.com/BioHazard786/warpmesh/internal/ui"
	"github.com/BioHazard786/warpmesh/internal/utils"
)

// ProgressTracker feeds Sender progress into the multi-file progress view.
type ProgressTracker struct {
	Model     *ui.ProgressModel
	FileNames []string
	FileSizes []int64
	StartTime time.Time
}

func NewProgressTracker(files []OutgoingFile) *ProgressTracker {
	names := make([]string, len(files))
	sizes := make([]int64, len(files))
	for i, f := range files {
		names[i] = f.Name
		sizes[i] = int64(len(f.Data))
	}
	return &ProgressTracker{
		Model:     ui.NewProgressModel(names, sizes),
		FileNames: names,
		FileSizes: sizes,
	}
}

func (p *ProgressTracker) Start() {
	p.StartTime = time.Now()
}

// Observer returns an OnProgress callback bound to file index.
func (p *ProgressTracker) Observer(index int) func(Progress) {
	return func(pr Progress) {
		p.Model.UpdateProgress(index, pr.BytesSent, pr.Recipients)
	}
}

func (p *ProgressTracker) Complete(index int) {
	p.Model.MarkComplete(index)
}

func (p *ProgressTracker) Error(index int, msg string) {
	p.Model.MarkError(index, msg)
}

func (p *ProgressTracker) View() string {
	return p.Model.View()
}

func (p *ProgressTracker) TotalSize() int64 {
	var total int64
	for _, s := range p.FileSizes {
		total += s
	}
	return total
}

func (p *ProgressTracker) Duration() time.Duration {
	return time.Since(p.StartTime)
}

// RunProgressLoop redraws view every 100ms until done is closed.
func RunProgressLoop(done <-chan struct{}, lines int, view func() string) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	drawn := false
	redraw := func() {
		if drawn {
			ClearProgressLines(lines)
		}
		drawn = true
		fmt.Print(view())
	}

	for {
		select {
		case <-done:
			redraw()
			return
		case <-ticker.C:
			redraw()
		}
	}
}

func ClearProgressLines(count int) {
	for range count {
		fmt.Print("\033[A\033[2K")
	}
}

func RenderSummary(status string, filesCount, recipients int, totalSize int64, duration time.Duration) {
	speed := float64(totalSize)
	if s := duration.Seconds(); s > 0 {
		speed /= s
	}
	fmt.Println()
	ui.RenderTransferSummary(ui.TransferSummary{
		Status:     status,
		Files:      filesCount,
		Recipients: recipients,
		TotalSize:  utils.FormatSize(totalSize),
		Duration:   utils.FormatTimeDuration(duration),
		Speed:      utils.FormatSpeed(speed),
	})
}

func BuildFileTable(files []OutgoingFile) []ui.FileTableItem {
	items := make([]ui.FileTableItem, len(files))
	for i, f := range files {
		items[i] = ui.FileTableItem{
			Index: i + 1,
			Name:  f.Name,
			Size:  int64(len(f.Data)),
			Type:  f.MediaType,
		}
	}
	return items
}
