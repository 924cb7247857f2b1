// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/sequencer"
	"github.com/adiadia/flowsim/internal/session"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer      = 16
	sseHeartbeat      = 15 * time.Second
	wsWriteTimeout    = 5 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingPeriod      = wsPongWait * 9 / 10
	wsMaxMessageBytes = 4 << 10
)

// streamSnapshots writes the session state as server-sent events until the
// client goes away or the session is closed.
func streamSnapshots(w http.ResponseWriter, r *http.Request, s *session.Session, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snaps, unsubscribe := s.Subscribe(streamBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				_, _ = fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				logger.Error("sse encode failed", "session_id", s.ID, "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// wsCommand is what a websocket client sends: "run", "reset", "cancel" or
// "ping".
type wsCommand struct {
	Type    string  `json:"type"`
	Fixture string  `json:"fixture,omitempty"`
	Query   string  `json:"query,omitempty"`
	Mode    string  `json:"mode,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

type wsMessage struct {
	Type     string             `json:"type"`
	Snapshot *domain.Snapshot   `json:"snapshot,omitempty"`
	Run      *sequencer.RunInfo `json:"run,omitempty"`
	Error    string             `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWebSocket pushes snapshots to the client and applies its commands.
// All writes happen on this goroutine; the reader hands replies over a
// channel.
func serveWebSocket(w http.ResponseWriter, r *http.Request, s *session.Session, logger *slog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "session_id", s.ID, "error", err)
		return
	}

	snaps, unsubscribe := s.Subscribe(streamBuffer)
	replies := make(chan wsMessage, 8)
	stop := make(chan struct{})
	readerDone := make(chan struct{})

	defer func() {
		unsubscribe()
		close(stop)
		_ = conn.Close()
		<-readerDone
	}()

	go func() {
		defer close(readerDone)
		readCommands(conn, s, replies, stop, logger)
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		var msg wsMessage
		select {
		case <-readerDone:
			return
		case snap, ok := <-snaps:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			msg = wsMessage{Type: "snapshot", Snapshot: &snap}
		case msg = <-replies:
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("websocket write failed", "session_id", s.ID, "error", err)
			return
		}
	}
}

func readCommands(conn *websocket.Conn, s *session.Session, replies chan<- wsMessage, stop <-chan struct{}, logger *slog.Logger) {
	conn.SetReadLimit(wsMaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	reply := func(msg wsMessage) bool {
		select {
		case replies <- msg:
			return true
		case <-stop:
			return false
		}
	}

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", "session_id", s.ID, "error", err)
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				if !reply(wsMessage{Type: "error", Error: "invalid command"}) {
					return
				}
				continue
			}
			return
		}

		var msg wsMessage
		switch cmd.Type {
		case "run":
			info, err := s.Run(session.RunRequest{
				Fixture: cmd.Fixture,
				Query:   cmd.Query,
				Mode:    cmd.Mode,
				Speed:   cmd.Speed,
			})
			if err != nil {
				msg = wsMessage{Type: "error", Error: err.Error()}
			} else {
				msg = wsMessage{Type: "run", Run: &info}
			}
		case "reset":
			s.Reset()
			msg = wsMessage{Type: "reset"}
		case "cancel":
			s.Cancel()
			msg = wsMessage{Type: "cancel"}
		case "ping":
			msg = wsMessage{Type: "pong"}
		default:
			msg = wsMessage{Type: "error", Error: fmt.Sprintf("unknown command %q", cmd.Type)}
		}
		if !reply(msg) {
			return
		}
	}
}
