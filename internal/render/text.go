package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/oicur0t/watchlogs/internal/store"
	"github.com/oicur0t/watchlogs/pkg/models"
)

// LevelAlpha is the opacity applied to level colors
const LevelAlpha = 0.5

// TextRenderer prints one colored line per log, followed by the payload tree
// when the log is opened
type TextRenderer struct {
	w         io.Writer
	r         *lipgloss.Renderer
	FullClock bool
	muted     lipgloss.Style
}

// NewTextRenderer writes to w, detecting color support from it
func NewTextRenderer(w io.Writer) *TextRenderer {
	r := lipgloss.NewRenderer(w)
	return &TextRenderer{
		w:     w,
		r:     r,
		muted: r.NewStyle().Faint(true),
	}
}

func (t *TextRenderer) Render(snap *store.Snapshot, log *models.Log) error {
	clock := log.Clock
	if t.FullClock {
		clock = log.FullClock
	}

	parts := []string{t.levelStyle(snap, log).Render(clock)}
	if f, ok := snap.File(log.File); ok {
		parts = append(parts, t.colored(f.Color, 1).Render(f.Name))
	}
	if log.RawLogger != "" {
		parts = append(parts, t.loggerStyle(snap, log).Render(log.RawLogger))
	}
	if log.User != "" {
		parts = append(parts, t.muted.Render("@"+log.User))
	}
	parts = append(parts, log.Message)

	var b strings.Builder
	b.WriteString(strings.Join(parts, " "))
	b.WriteByte('\n')

	if log.Payload != nil && (snap.Opened(log.ID) || !log.Payload.Annotated()) {
		t.writeNode(&b, snap, log, log.Payload, 1)
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *TextRenderer) writeNode(b *strings.Builder, snap *store.Snapshot, log *models.Log, n *models.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	label := ""
	if n.Key != "" {
		label = n.Key + ": "
	}

	if !n.Annotated() {
		fmt.Fprintf(b, "%s%s%s\n", indent, label, scalarText(n))
		return
	}

	lb, rb := "{", "}"
	if n.Kind == models.KindArray {
		lb, rb = "[", "]"
	}
	if !n.Expandable() {
		fmt.Fprintf(b, "%s%s%s%s\n", indent, label, lb, rb)
		return
	}
	if !snap.Expanded(log.ID, n.Path) {
		fmt.Fprintf(b, "%s%s%s %s %s\n", indent, label, lb, t.muted.Render(fmt.Sprintf("%d items", len(n.Children))), rb)
		return
	}
	fmt.Fprintf(b, "%s%s%s\n", indent, label, lb)
	for _, c := range n.Children {
		t.writeNode(b, snap, log, c, depth+1)
	}
	fmt.Fprintf(b, "%s%s\n", indent, rb)
}

func scalarText(n *models.Node) string {
	switch n.Kind {
	case models.KindString:
		return strconv.Quote(fmt.Sprint(n.Value))
	case models.KindNull:
		return "null"
	default:
		return fmt.Sprint(n.Value)
	}
}

func (t *TextRenderer) levelStyle(snap *store.Snapshot, log *models.Log) lipgloss.Style {
	style := t.r.NewStyle()
	for _, l := range snap.Levels {
		if l.Name == log.Level {
			if c, ok := blend(l.Color, LevelAlpha); ok {
				style = style.Background(lipgloss.Color(c))
			}
			break
		}
	}
	return style
}

func (t *TextRenderer) loggerStyle(snap *store.Snapshot, log *models.Log) lipgloss.Style {
	style := t.r.NewStyle()
	for _, l := range snap.Loggers {
		if l.Name != log.Logger {
			continue
		}
		if c, ok := blend(l.Color, 1); ok {
			style = style.Foreground(lipgloss.Color(c))
		}
		if c, ok := blend(l.BgColor, l.BgOpacity); ok {
			style = style.Background(lipgloss.Color(c))
		}
		break
	}
	return style
}

func (t *TextRenderer) colored(hex string, alpha float64) lipgloss.Style {
	style := t.r.NewStyle()
	if c, ok := blend(hex, alpha); ok {
		style = style.Foreground(lipgloss.Color(c))
	}
	return style
}

// blend scales a #rgb or #rrggbb color towards black by alpha, standing in
// for transparency on a dark terminal
func blend(hex string, alpha float64) (string, bool) {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return "", false
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	scale := func(v uint8) uint8 { return uint8(float64(v)*alpha + 0.5) }
	return fmt.Sprintf("#%02x%02x%02x", scale(r), scale(g), scale(b)), true
}

func parseHex(hex string) (uint8, uint8, uint8, bool) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}
