package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Lipgloss styles used by recv --pretty
var (
	styleSeq  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")) // Purple
	styleMeta = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))           // Gray
	styleBody = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingLeft(2)
	styleEmpty = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Italic(true).PaddingLeft(2)
)

// renderMessage renders one received message with a header line carrying
// its sequence number and payload length
func renderMessage(seq int, msg []byte) string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		styleSeq.Render(fmt.Sprintf("#%d", seq)),
		" ",
		styleMeta.Render(fmt.Sprintf("%d bytes", len(msg))),
	)

	body := styleBody.Render(string(msg))
	if len(msg) == 0 {
		body = styleEmpty.Render("(empty)")
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}
