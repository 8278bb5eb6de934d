package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vvka-141/pgdbapi/internal/schema"
)

// Color palette, kept small and accessible.
var (
	ColorPrimary   = lipgloss.Color("39")  // Blue
	ColorSecondary = lipgloss.Color("245") // Gray
	ColorSuccess   = lipgloss.Color("34")  // Green
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("240") // Dark gray
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	TableNameStyle = lipgloss.NewStyle().
			Bold(true)

	ColumnStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			MarginLeft(2)

	TypeStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSecondary).
			Padding(0, 1)
)

const (
	SymbolCheck  = "✓"
	SymbolCross  = "✗"
	SymbolBullet = "•"
)

// Renderer formats output for one destination. Plain renderers emit no
// escape sequences.
type Renderer struct {
	color bool
}

// NewRenderer returns a renderer; color selects styled output.
func NewRenderer(color bool) *Renderer {
	return &Renderer{color: color}
}

func (r *Renderer) render(style lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return style.Render(s)
}

// Success renders a one-line success message.
func (r *Renderer) Success(msg string) string {
	return r.render(SuccessStyle, SymbolCheck+" "+msg)
}

// Failure renders a one-line failure message.
func (r *Renderer) Failure(msg string) string {
	return r.render(ErrorStyle, SymbolCross+" "+msg)
}

// Schema renders every table of snap with its columns in ordinal order.
func (r *Renderer) Schema(snap *schema.Snapshot) string {
	var b strings.Builder
	names := snap.TableNames()
	b.WriteString(r.render(TitleStyle, fmt.Sprintf("Schema version %d: %d table(s)", snap.Version(), len(names))))
	b.WriteString("\n")

	for _, name := range names {
		table, _ := snap.Table(name)
		b.WriteString("\n")
		b.WriteString(r.render(TableNameStyle, name))
		b.WriteString("\n")
		for _, c := range table.Columns {
			nullable := ""
			if !c.Nullable {
				nullable = " not null"
			}
			line := fmt.Sprintf("%s %s %s", SymbolBullet, c.Name, r.render(TypeStyle, c.DataType+nullable))
			if r.color {
				line = ColumnStyle.Render(line)
			} else {
				line = "  " + line
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if !r.color {
		return b.String()
	}
	return BoxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}
