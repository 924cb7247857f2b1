// SPDX-License-Identifier: Apache-2.0

package demos

import (
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/sequencer"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func at(id string, status domain.NodeStatus) sequencer.Effect {
	return sequencer.SetNode(id, status)
}

func say(id string, status domain.NodeStatus, message string) sequencer.Effect {
	return sequencer.SetNodeMessage(id, status, message)
}
