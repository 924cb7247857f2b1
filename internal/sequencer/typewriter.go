// SPDX-License-Identifier: Apache-2.0

package sequencer

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/adiadia/flowsim/internal/clock"
	"github.com/adiadia/flowsim/internal/metrics"
)

// Typewriter reveals a text one rune per tick. At most one ticker is live:
// Start stops the previous one, and every tick carries the generation it
// was armed for, so a tick that raced a Stop is a no-op.
type Typewriter struct {
	mu     sync.Mutex
	clock  clock.Clock
	period time.Duration
	guard  func(func())
	onTick func(index int)

	gen    uint64
	timer  clock.Timer
	index  int
	total  int
	active bool
}

// NewTypewriter returns a stopped typewriter. guard, when non-nil, wraps every
// tick so the owner can serialize ticks with its own state; onTick runs
// inside it and must not call back into the typewriter.
func NewTypewriter(clk clock.Clock, period time.Duration, guard func(func()), onTick func(index int)) *Typewriter {
	if clk == nil {
		clk = clock.Real{}
	}
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	if guard == nil {
		guard = func(fn func()) { fn() }
	}
	if onTick == nil {
		onTick = func(int) {}
	}
	return &Typewriter{
		clock:  clk,
		period: period,
		guard:  guard,
		onTick: onTick,
	}
}

// Start resets the index to zero and begins revealing text.
func (tw *Typewriter) Start(text string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.stopLocked()
	tw.index = 0
	tw.total = utf8.RuneCountInString(text)
	if tw.total == 0 {
		return
	}
	tw.active = true
	tw.armLocked()
}

func (tw *Typewriter) Stop() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.stopLocked()
}

func (tw *Typewriter) Index() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.index
}

func (tw *Typewriter) Active() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.active
}

func (tw *Typewriter) stopLocked() {
	tw.gen++
	tw.active = false
	if tw.timer != nil {
		tw.timer.Stop()
		tw.timer = nil
	}
}

func (tw *Typewriter) armLocked() {
	gen := tw.gen
	tw.timer = tw.clock.AfterFunc(tw.period, func() {
		tw.guard(func() { tw.tick(gen) })
	})
}

func (tw *Typewriter) tick(gen uint64) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if gen != tw.gen || !tw.active {
		return
	}
	tw.timer = nil
	tw.index++
	metrics.IncRevealTick()
	tw.onTick(tw.index)

	if tw.index >= tw.total {
		tw.active = false
		return
	}
	tw.armLocked()
}
