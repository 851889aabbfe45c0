package ui

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/warpmesh/internal/utils"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const maxDashboardEvents = 8

// Dashboard is the live room view shown while joined to a mesh. Its setters
// never block: updates are merged into pending state that the UI picks up
// on its next refresh.
type Dashboard struct {
	program *tea.Program
	model   *dashboardModel
	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup

	mu       sync.Mutex
	notify   chan struct{}
	peers    []PeerRow
	peersSet bool
	events   []eventLine
	incoming map[string]IncomingRow
	order    []string
}

// IncomingRow is a file being received from a peer.
type IncomingRow struct {
	ID       string
	Name     string
	From     string
	Received int
	Total    int
}

type eventLine struct {
	at   time.Time
	line string
}

// refreshMsg carries everything that changed since the last refresh.
type refreshMsg struct {
	peers    []PeerRow
	peersSet bool
	events   []eventLine
	incoming []IncomingRow
}

type dashboardModel struct {
	roomID   string
	roomLink string
	localID  string
	peers    []PeerRow
	events   []eventLine
	incoming []IncomingRow
	spinner  spinner.Model
	bar      progress.Model
	next     func() tea.Msg
	onQuit   func()
	quitting bool
}

func NewDashboard(roomID, roomLink, localID string) *Dashboard {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	d := &Dashboard{
		done:     make(chan struct{}),
		notify:   make(chan struct{}, 1),
		incoming: make(map[string]IncomingRow),
	}
	d.model = &dashboardModel{
		roomID:   roomID,
		roomLink: roomLink,
		localID:  localID,
		spinner:  s,
		bar:      progress.New(progress.WithGradient(ProgressStart, ProgressEnd), progress.WithWidth(30)),
		next:     d.wait,
	}
	return d
}

// Start runs the dashboard in a goroutine. onQuit is called when the user
// presses q or ctrl+c.
func (d *Dashboard) Start(onQuit func()) {
	d.model.onQuit = onQuit
	d.program = tea.NewProgram(d.model)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.program.Run(); err != nil {
			PrintErrorf("UI error: %v", err)
		}
	}()
}

func (d *Dashboard) poke() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// SetPeers replaces the roster rows.
func (d *Dashboard) SetPeers(rows []PeerRow) {
	d.mu.Lock()
	d.peers = append([]PeerRow(nil), rows...)
	d.peersSet = true
	d.mu.Unlock()
	d.poke()
}

// Event appends a line to the activity log.
func (d *Dashboard) Event(format string, args ...any) {
	e := eventLine{at: time.Now(), line: fmt.Sprintf(format, args...)}
	d.mu.Lock()
	d.events = append(d.events, e)
	if len(d.events) > maxDashboardEvents {
		d.events = d.events[len(d.events)-maxDashboardEvents:]
	}
	d.mu.Unlock()
	d.poke()
}

// SetIncoming updates the progress of a file being received. Rows are
// dropped once every chunk has arrived.
func (d *Dashboard) SetIncoming(row IncomingRow) {
	d.mu.Lock()
	if _, ok := d.incoming[row.ID]; !ok {
		d.order = append(d.order, row.ID)
	}
	d.incoming[row.ID] = row
	if row.Received >= row.Total {
		delete(d.incoming, row.ID)
		d.order = slices.DeleteFunc(d.order, func(id string) bool { return id == row.ID })
	}
	d.mu.Unlock()
	d.poke()
}

// take returns the pending changes and clears them.
func (d *Dashboard) take() refreshMsg {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg := refreshMsg{peers: d.peers, peersSet: d.peersSet, events: d.events}
	for _, id := range d.order {
		msg.incoming = append(msg.incoming, d.incoming[id])
	}
	d.peersSet = false
	d.events = nil
	return msg
}

func (d *Dashboard) wait() tea.Msg {
	select {
	case <-d.notify:
		return d.take()
	case <-d.done:
		return nil
	}
}

func (d *Dashboard) Stop() {
	d.stop.Do(func() {
		close(d.done)
		if d.program != nil {
			d.program.Quit()
		}
		d.wg.Wait()
	})
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates())
}

func (m *dashboardModel) listenForUpdates() tea.Cmd {
	return m.next
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		if msg.peersSet {
			m.peers = msg.peers
		}
		m.incoming = msg.incoming
		m.events = append(m.events, msg.events...)
		if len(m.events) > maxDashboardEvents {
			m.events = m.events[len(m.events)-maxDashboardEvents:]
		}
		return m, m.listenForUpdates()
	}
	return m, nil
}

func (m *dashboardModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(RoomInfoView(m.roomID, m.roomLink, m.localID))
	b.WriteString("\n\n")

	connected := 0
	for _, p := range m.peers {
		if p.Link == "connected" {
			connected++
		}
	}
	header := HeaderStyle.Render(fmt.Sprintf("%s %d/%d peers connected", IconMesh, connected, len(m.peers)))
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), header)
	b.WriteString(PeerTableView(m.peers))
	b.WriteString("\n")

	for _, in := range m.incoming {
		percent := 0.0
		if in.Total > 0 {
			percent = float64(in.Received) / float64(in.Total)
		}
		fmt.Fprintf(&b, "%s %s from %s %s %d/%d\n", IconReceive,
			utils.TruncateString(in.Name, 30), in.From, m.bar.ViewAs(percent), in.Received, in.Total)
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			fmt.Fprintf(&b, "%s %s\n", MutedStyle.Render(e.at.Format("15:04:05")), e.line)
		}
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to leave the room"))
	return b.String()
}
