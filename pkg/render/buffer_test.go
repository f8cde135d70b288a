package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/componentkit/pkg/layout"
)

func TestNewBuffer_FilledWithSpaces(t *testing.T) {
	b := NewBuffer(4, 2)
	w, h := b.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 2, h)
	assert.Equal(t, ' ', b.Get(3, 1))
	assert.False(t, b.IsDirty())
	assert.Equal(t, []string{"", ""}, b.Lines())
}

func TestSetString_ClipsAndTracksDirty(t *testing.T) {
	b := NewBuffer(5, 2)

	n := b.SetString(1, 0, "hello")
	assert.Equal(t, 4, n)
	assert.Equal(t, " hell", b.Line(0))
	assert.Equal(t, 4, b.DirtyCount())
	assert.Equal(t, []int{0}, b.DirtyRows())

	b.ClearDirty()
	b.SetString(1, 0, "he")
	assert.False(t, b.IsDirty(), "rewriting identical content should not dirty cells")
}

func TestSetString_WideRunes(t *testing.T) {
	b := NewBuffer(5, 1)
	n := b.SetString(0, 0, "日本語")
	assert.Equal(t, 4, n, "third wide rune does not fit in the last cell")
	assert.Equal(t, "日本", b.Line(0))
	assert.Equal(t, rune(0), b.Get(1, 0))
}

func TestFillAndClear(t *testing.T) {
	b := NewBuffer(3, 3)
	b.Fill(layout.Rect{X: 1, Y: 1, Width: 5, Height: 5}, '#')
	assert.Equal(t, []string{"", " ##", " ##"}, b.Lines())
	assert.Equal(t, layout.Rect{X: 1, Y: 1, Width: 2, Height: 2}, b.DirtyRect())

	b.Clear()
	assert.Equal(t, "\n\n", b.String())
}

func TestDrawBox(t *testing.T) {
	b := NewBuffer(4, 3)
	b.DrawBox(layout.Rect{Width: 4, Height: 3})
	assert.Equal(t, []string{"┌──┐", "│  │", "└──┘"}, b.Lines())

	small := NewBuffer(1, 1)
	small.DrawBox(layout.Rect{Width: 1, Height: 1})
	assert.False(t, small.IsDirty())
}

func TestSubBuffer(t *testing.T) {
	b := NewBuffer(6, 3)
	sub := b.Sub(layout.Rect{X: 2, Y: 1, Width: 3, Height: 1})

	w, h := sub.Size()
	require.Equal(t, 3, w)
	require.Equal(t, 1, h)

	sub.SetString(0, 0, "abcdef")
	sub.SetString(0, 1, "zzz")
	sub.Set(5, 0, 'x')

	assert.Equal(t, []string{"", "  abc", ""}, b.Lines())

	sub.Clear()
	assert.Equal(t, "", b.Line(1))
}

func TestSubBuffer_ClippedToParent(t *testing.T) {
	b := NewBuffer(4, 2)
	sub := b.Sub(layout.Rect{X: 2, Y: 0, Width: 10, Height: 10})
	w, h := sub.Size()
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
}

func TestResize(t *testing.T) {
	b := NewBuffer(3, 1)
	b.SetString(0, 0, "abc")
	b.ClearDirty()

	b.Resize(5, 2)
	assert.Equal(t, []string{"abc", ""}, b.Lines())
	assert.Equal(t, 10, b.DirtyCount())
}
