package component

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/odvcencio/componentkit/pkg/layout"
	"github.com/odvcencio/componentkit/pkg/render"
)

// Text is a leaf component that lays out word-wrapped text.
type Text struct {
	text     string
	maxLines int
}

// NewText creates a text component. maxLines <= 0 means no line limit.
func NewText(text string, maxLines int) Text {
	return Text{text: text, maxLines: maxLines}
}

// String returns the text content.
func (t Text) String() string {
	return t.text
}

// Layout wraps the text to the maximum width and sizes to the result.
func (t Text) Layout(c layout.Constraints) *layout.Layout {
	lines := t.wrap(c.MaxWidth)
	width := 0
	for _, line := range lines {
		width = max(width, runewidth.StringWidth(line))
	}
	return &layout.Layout{
		Node: t,
		Size: c.Constrain(layout.Size{Width: width, Height: len(lines)}),
	}
}

// Draw paints the wrapped lines.
func (t Text) Draw(c render.Canvas, l *layout.Layout) {
	for y, line := range t.wrap(l.Size.Width) {
		if y >= l.Size.Height {
			break
		}
		c.SetString(0, y, line)
	}
}

func (t Text) wrap(width int) []string {
	lines := wrapText(t.text, width)
	if t.maxLines > 0 && len(lines) > t.maxLines {
		lines = lines[:t.maxLines]
		last := lines[t.maxLines-1]
		if width > 1 && width != layout.Infinite {
			lines[t.maxLines-1] = runewidth.Truncate(last+" …", width, "…")
		}
	}
	return lines
}

// wrapText breaks text into lines no wider than width cells, splitting on
// whitespace and hard-breaking words that do not fit on a line of their own.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if width <= 0 {
		return nil
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		var line strings.Builder
		lineWidth := 0
		for _, word := range words {
			for runewidth.StringWidth(word) > width {
				if lineWidth > 0 {
					lines = append(lines, line.String())
					line.Reset()
					lineWidth = 0
				}
				head := runewidth.Truncate(word, width, "")
				if head == "" {
					// A single rune wider than the line; emit it anyway.
					r := []rune(word)
					head = string(r[0])
				}
				lines = append(lines, head)
				word = word[len(head):]
			}
			if word == "" {
				continue
			}
			ww := runewidth.StringWidth(word)
			switch {
			case lineWidth == 0:
				line.WriteString(word)
				lineWidth = ww
			case lineWidth+1+ww <= width:
				line.WriteByte(' ')
				line.WriteString(word)
				lineWidth += 1 + ww
			default:
				lines = append(lines, line.String())
				line.Reset()
				line.WriteString(word)
				lineWidth = ww
			}
		}
		if lineWidth > 0 {
			lines = append(lines, line.String())
		}
	}
	return lines
}
