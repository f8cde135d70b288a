package render

import (
	"context"

	"github.com/gdamore/tcell/v2"
)

// Screen presents buffers on a terminal through tcell. Only the cells a
// buffer reports dirty are written.
type Screen struct {
	screen tcell.Screen
	style  tcell.Style
}

// NewScreen opens the controlling terminal.
func NewScreen() (*Screen, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return NewScreenWith(screen), nil
}

// NewScreenWith wraps an existing tcell screen (for testing).
func NewScreenWith(screen tcell.Screen) *Screen {
	return &Screen{screen: screen, style: tcell.StyleDefault}
}

// Init initializes the terminal and clears it.
func (s *Screen) Init() error {
	if err := s.screen.Init(); err != nil {
		return err
	}
	s.screen.HideCursor()
	s.screen.Clear()
	return nil
}

// Fini restores the terminal.
func (s *Screen) Fini() {
	s.screen.Fini()
}

// Size returns the terminal dimensions.
func (s *Screen) Size() (width, height int) {
	return s.screen.Size()
}

// Present writes the dirty cells of b, shows them and clears b's dirty
// state. It returns the number of cells written.
func (s *Screen) Present(b *Buffer) int {
	if !b.IsDirty() {
		return 0
	}
	r := b.DirtyRect()
	n := 0
	for y := r.Y; y < r.Y+r.Height && y < b.height; y++ {
		for x := r.X; x < r.X+r.Width && x < b.width; x++ {
			idx := y*b.width + x
			if !b.dirty[idx] {
				continue
			}
			ch := b.cells[idx]
			if ch == 0 {
				// Trailing half of a wide rune.
				continue
			}
			s.screen.SetContent(x, y, ch, nil, s.style)
			n++
		}
	}
	b.ClearDirty()
	s.screen.Show()
	return n
}

// WaitKey blocks until a key is pressed or ctx is done.
func (s *Screen) WaitKey(ctx context.Context) error {
	keys := make(chan struct{})
	go func() {
		defer close(keys)
		for {
			switch s.screen.PollEvent().(type) {
			case *tcell.EventKey, nil:
				return
			}
		}
	}()
	select {
	case <-keys:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
