package render

import (
	"context"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simScreen(t *testing.T, w, h int) (*Screen, tcell.SimulationScreen) {
	t.Helper()
	sim := tcell.NewSimulationScreen("")
	s := NewScreenWith(sim)
	require.NoError(t, s.Init())
	sim.SetSize(w, h)
	t.Cleanup(s.Fini)
	return s, sim
}

func contentAt(sim tcell.SimulationScreen, x, y int) rune {
	ch, _, _, _ := sim.GetContent(x, y)
	return ch
}

func TestScreen_PresentWritesOnlyDirtyCells(t *testing.T) {
	s, sim := simScreen(t, 6, 2)
	b := NewBuffer(6, 2)

	b.SetString(0, 0, "hi")
	b.Set(5, 1, 'z')
	assert.Equal(t, 3, s.Present(b))
	assert.False(t, b.IsDirty())
	assert.Equal(t, 'h', contentAt(sim, 0, 0))
	assert.Equal(t, 'i', contentAt(sim, 1, 0))
	assert.Equal(t, 'z', contentAt(sim, 5, 1))

	assert.Zero(t, s.Present(b), "clean buffer writes nothing")

	b.Clear()
	b.SetString(0, 0, "ho")
	// (0,0) was touched by Clear, so it is rewritten alongside (1,0) and (5,1).
	assert.Equal(t, 3, s.Present(b), "only touched cells are written")
	assert.Equal(t, 'o', contentAt(sim, 1, 0))
	assert.Equal(t, ' ', contentAt(sim, 5, 1))
}

func TestScreen_WideRunes(t *testing.T) {
	s, sim := simScreen(t, 4, 1)
	b := NewBuffer(4, 1)
	b.SetString(0, 0, "世a")

	assert.Equal(t, 2, s.Present(b))
	assert.Equal(t, '世', contentAt(sim, 0, 0))
	assert.Equal(t, 'a', contentAt(sim, 2, 0))
}

func TestScreen_WaitKey(t *testing.T) {
	s, sim := simScreen(t, 2, 1)

	sim.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitKey(ctx))

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.WaitKey(ctx), context.Canceled)
}
