package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/warpmesh/internal/utils"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// ProgressItem represents a single file being broadcast
type ProgressItem struct {
	ID         int
	Name       string
	Total      int64
	Current    int64
	Recipients int
	StartTime  time.Time
	Started    bool    // set on the first chunk, not at construction
	Speed      float64 // bytes per second
	IsComplete bool
	HasError   bool
	ErrorMsg   string
}

// ProgressModel renders one progress bar per file
type ProgressModel struct {
	items      []*ProgressItem
	progresses []progress.Model
	mu         sync.RWMutex
}

func NewProgressModel(fileNames []string, fileSizes []int64) *ProgressModel {
	items := make([]*ProgressItem, len(fileNames))
	progresses := make([]progress.Model, len(fileNames))

	for i := range fileNames {
		items[i] = &ProgressItem{ID: i, Name: fileNames[i], Total: fileSizes[i]}
		progresses[i] = progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		)
	}

	return &ProgressModel{items: items, progresses: progresses}
}

// UpdateProgress records bytes sent and how many peers are still receiving.
func (m *ProgressModel) UpdateProgress(id int, current int64, recipients int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 0 || id >= len(m.items) {
		return
	}
	item := m.items[id]
	if !item.Started && current > 0 {
		item.Started = true
		item.StartTime = time.Now()
	}
	if item.Started {
		if elapsed := time.Since(item.StartTime).Seconds(); elapsed > 0 {
			item.Speed = float64(current) / elapsed
		}
	}
	item.Current = current
	item.Recipients = recipients
	if current >= item.Total {
		item.IsComplete = true
	}
}

func (m *ProgressModel) MarkComplete(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id >= 0 && id < len(m.items) {
		m.items[id].IsComplete = true
		m.items[id].Current = m.items[id].Total
	}
}

func (m *ProgressModel) MarkError(id int, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id >= 0 && id < len(m.items) {
		m.items[id].HasError = true
		m.items[id].ErrorMsg = errMsg
	}
}

// AllComplete returns true if all files are complete or failed
func (m *ProgressModel) AllComplete() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, item := range m.items {
		if !item.IsComplete && !item.HasError {
			return false
		}
	}
	return true
}

func (m *ProgressModel) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	for i, item := range m.items {
		icon, nameStyle := IconFile, lipgloss.NewStyle()
		switch {
		case item.HasError:
			icon, nameStyle = IconError, ErrorStyle
		case item.IsComplete:
			icon, nameStyle = IconSuccess, SuccessStyle
		}

		fmt.Fprintf(&b, "%s %s ", icon, nameStyle.Render(utils.TruncateString(item.Name, 30)))

		if item.Total > 0 {
			ratio := float64(item.Current) / float64(item.Total)
			b.WriteString(m.progresses[i].ViewAs(ratio))
			fmt.Fprintf(&b, " %5.1f%%", ratio*100)
		}

		if item.Recipients > 0 {
			b.WriteString(MutedStyle.Render(fmt.Sprintf(" %s %d", IconPeer, item.Recipients)))
		}

		if !item.IsComplete && !item.HasError && item.Speed > 0 {
			b.WriteString(MutedStyle.Render(" " + utils.FormatSpeed(item.Speed)))
			if remaining := item.Total - item.Current; remaining > 0 {
				eta := time.Duration(float64(remaining) / item.Speed * float64(time.Second))
				b.WriteString(MutedStyle.Render(" ETA: " + utils.FormatTimeDuration(eta)))
			}
		}

		if item.HasError && item.ErrorMsg != "" {
			b.WriteString(ErrorStyle.Render(" " + item.ErrorMsg))
		} else {
			b.WriteString(MutedStyle.Render(fmt.Sprintf(" (%s/%s)",
				utils.FormatSize(item.Current), utils.FormatSize(item.Total))))
		}
		b.WriteString("\n")
	}
	return b.String()
}
