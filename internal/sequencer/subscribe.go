// SPDX-License-Identifier: Apache-2.0

package sequencer

import "github.com/adiadia/flowsim/internal/domain"

type subscriber struct {
	ch chan domain.Snapshot
}

// offer never blocks: when the buffer is full the oldest queued snapshot is
// replaced, so a slow reader always ends up with the newest state.
func (sub *subscriber) offer(snap domain.Snapshot) {
	select {
	case sub.ch <- snap:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- snap:
	default:
	}
}

// Subscribe returns a channel that receives the current snapshot immediately
// and then one snapshot per mutation, and a func that unsubscribes. The
// channel is closed on unsubscribe and when the sequencer is closed.
func (s *Sequencer) Subscribe(buffer int) (<-chan domain.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscriber{ch: make(chan domain.Snapshot, buffer)}
	if s.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	s.nextSub++
	id := s.nextSub
	s.subs[id] = sub
	sub.offer(s.state.Snapshot())

	return sub.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(cur.ch)
		}
	}
}

func (s *Sequencer) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.state.Snapshot()
	for _, sub := range s.subs {
		sub.offer(snap)
	}
}
