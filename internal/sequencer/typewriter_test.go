// SPDX-License-Identifier: Apache-2.0

package sequencer

import (
	"testing"
	"time"

	"github.com/adiadia/flowsim/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypewriterRevealsEveryRune(t *testing.T) {
	clk := clock.NewManual(epoch)
	var ticks []int
	tw := NewTypewriter(clk, 15*time.Millisecond, nil, func(i int) { ticks = append(ticks, i) })

	tw.Start("héllo ⚡")
	assert.True(t, tw.Active())

	clk.Advance(14 * time.Millisecond)
	assert.Zero(t, tw.Index())

	clk.Advance(time.Hour)
	assert.Equal(t, 7, tw.Index())
	assert.False(t, tw.Active())
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, ticks)
	assert.Zero(t, clk.Pending())
}

func TestTypewriterRestartKeepsSingleTicker(t *testing.T) {
	clk := clock.NewManual(epoch)
	var ticks []int
	tw := NewTypewriter(clk, 10*time.Millisecond, nil, func(i int) { ticks = append(ticks, i) })

	tw.Start("first answer")
	clk.Advance(35 * time.Millisecond)
	require.Equal(t, 3, tw.Index())

	tw.Start("second")
	assert.Zero(t, tw.Index())
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(time.Hour)
	assert.Equal(t, len("second"), tw.Index())
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3, 4, 5, 6}, ticks)
}

func TestTypewriterEmptyTextSettles(t *testing.T) {
	clk := clock.NewManual(epoch)
	tw := NewTypewriter(clk, 0, nil, nil)

	tw.Start("")
	assert.False(t, tw.Active())
	assert.Zero(t, tw.Index())
	assert.Zero(t, clk.Pending())
}

func TestTypewriterStopFreezesIndex(t *testing.T) {
	clk := clock.NewManual(epoch)
	tw := NewTypewriter(clk, 20*time.Millisecond, nil, nil)

	tw.Start("abcdef")
	clk.Advance(40 * time.Millisecond)
	tw.Stop()
	tw.Stop()

	clk.Advance(time.Hour)
	assert.Equal(t, 2, tw.Index())
	assert.False(t, tw.Active())
}

func TestTypewriterGuardWrapsTicks(t *testing.T) {
	clk := clock.NewManual(epoch)
	guarded := 0
	guard := func(fn func()) {
		guarded++
		fn()
	}
	tw := NewTypewriter(clk, 5*time.Millisecond, guard, nil)

	tw.Start("abc")
	clk.Advance(time.Second)
	assert.Equal(t, 3, guarded)
	assert.Equal(t, 3, tw.Index())
}
