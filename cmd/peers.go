package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bjoernblessin.de/groupstack/sequencing"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	gapStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// HandleListPeers displays the sequencing state of every known peer.
func HandleListPeers(args []string) {
	if len(args) != 0 {
		fmt.Fprintln(out, "Usage: peers")
		return
	}

	snap, err := channel.Snapshot()
	if err != nil {
		fmt.Fprintf(out, "Can't read peers: %v\n", err)
		return
	}

	fmt.Fprint(out, renderPeers(snap))
}

func renderPeers(snap sequencing.Snapshot) string {
	var s strings.Builder

	title := fmt.Sprintf("Round %d", snap.Round)
	if snap.Multicast {
		title += fmt.Sprintf(", group sequence %d", snap.GroupSequence)
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n")

	if len(snap.Peers) == 0 {
		s.WriteString("No known peers.\n")
		return s.String()
	}

	s.WriteString(headerStyle.Render(fmt.Sprintf("  %-21s %-8s %-10s %-10s %-7s %s",
		"PEER", "SYNCED", "UNCONF", "DELIVERED", "PENDING", "IDLE (send/recv/traffic)")))
	s.WriteString("\n")

	for _, p := range snap.Peers {
		fmt.Fprintf(&s, "  %-21s %-8t %-10d %-10d %-7d %d/%d/%d\n",
			p.Addr, p.Synced, p.UnconfirmedSlots, p.LastDelivered, p.Pending,
			p.RoundsSinceSend, p.RoundsSinceReceive, p.RoundsSinceTraffic)

		if p.Gap != nil {
			s.WriteString(gapStyle.Render(fmt.Sprintf("    missing %s for %d rounds", p.Gap, p.GapAge)))
			s.WriteString("\n")
		}
	}

	return s.String()
}
