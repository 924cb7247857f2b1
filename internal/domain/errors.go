// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrDemoNotFound = errors.New("demo not found")
var ErrFixtureNotFound = errors.New("fixture not found")
var ErrUnknownMode = errors.New("unknown mode")
var ErrSessionNotFound = errors.New("session not found")
var ErrSessionClosed = errors.New("session closed")
var ErrInvalidSpeed = errors.New("speed must be between 0.1 and 10")
