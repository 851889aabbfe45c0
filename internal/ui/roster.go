package ui

import (
	"strings"

	"github.com/BioHazard786/warpmesh/internal/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const shortIDLen = 8

// PeerRow is one participant as shown in the roster.
type PeerRow struct {
	ClientID    string
	DisplayName string
	Link        string // link state name, empty when there is no link
	Role        string
	ChannelOpen bool
	Media       []string // remote track kinds
}

// PeerTableView renders the roster with go-pretty.
func PeerTableView(rows []PeerRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render(IconWaiting + " Waiting for peers to join...")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	t.AppendHeader(table.Row{"Peer", "ID", "Link", "Files", "Media"})

	for _, r := range rows {
		link := r.Link
		if link == "" {
			link = "-"
		} else if r.Role != "" {
			link += " (" + r.Role + ")"
		}

		files := "-"
		if r.ChannelOpen {
			files = "open"
		}

		media := "-"
		if len(r.Media) > 0 {
			media = strings.Join(r.Media, ",")
		}

		t.AppendRow(table.Row{
			utils.TruncateString(r.DisplayName, 24),
			shortID(r.ClientID),
			LinkStateStyle(r.Link).Render(link),
			files,
			media,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Files", Align: text.AlignCenter},
	})
	return t.Render()
}

// shortID shows the first characters of a client id, like a short commit hash.
func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}
