// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/gorilla/websocket"
)

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, body *bufio.Reader, events chan<- sseEvent) {
	t.Helper()
	var ev sseEvent
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			close(events)
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				events <- ev
			}
			ev = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func nextSSE(t *testing.T, events <-chan sseEvent, match func(sseEvent) bool) sseEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream ended early")
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestStreamSnapshotsOverSSE(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	view := env.openSession(t, "idp")
	base := srv.URL + "/sessions/" + view.ID.String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected text/event-stream got %q", got)
	}

	events := make(chan sseEvent, 64)
	go readSSE(t, bufio.NewReader(resp.Body), events)

	first := nextSSE(t, events, func(ev sseEvent) bool { return ev.name == "snapshot" })
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(first.data), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Demo != "idp" || snap.Result != nil {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}

	runResp, err := http.Post(base+"/runs", "application/json", strings.NewReader(`{"fixture":"receipt"}`))
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	runResp.Body.Close()
	if runResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202 got %d", runResp.StatusCode)
	}

	env.clock.Advance(time.Hour)

	nextSSE(t, events, func(ev sseEvent) bool {
		if ev.name != "snapshot" {
			return false
		}
		var s domain.Snapshot
		return json.Unmarshal([]byte(ev.data), &s) == nil && s.Result != nil && s.RevealedText == s.Result.Text
	})

	delReq, _ := http.NewRequest(http.MethodDelete, base, nil)
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	delResp.Body.Close()

	nextSSE(t, events, func(ev sseEvent) bool { return ev.name == "closed" })
}

func TestStreamSnapshotsUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/sessions/00000000-0000-0000-0000-000000000000/events", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func readWS(t *testing.T, conn *websocket.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read websocket message: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func ofType(kind string) func(wsMessage) bool {
	return func(m wsMessage) bool { return m.Type == kind }
}

func TestWebSocketCommands(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	view := env.openSession(t, "insights")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + view.ID.String() + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	initial := readWS(t, conn, ofType("snapshot"))
	if initial.Snapshot == nil || initial.Snapshot.Demo != "insights" {
		t.Fatalf("unexpected initial message %+v", initial)
	}

	if err := conn.WriteJSON(wsCommand{Type: "run", Fixture: "simple", Speed: 2}); err != nil {
		t.Fatalf("send run: %v", err)
	}
	run := readWS(t, conn, ofType("run"))
	if run.Run == nil || run.Run.Fixture != "simple" || run.Run.Speed != 2 {
		t.Fatalf("unexpected run reply %+v", run)
	}

	env.clock.Advance(time.Hour)
	readWS(t, conn, func(m wsMessage) bool {
		return m.Type == "snapshot" && m.Snapshot != nil && m.Snapshot.Result != nil
	})

	if err := conn.WriteJSON(wsCommand{Type: "run", Mode: "turbo"}); err != nil {
		t.Fatalf("send bad run: %v", err)
	}
	if msg := readWS(t, conn, ofType("error")); !strings.Contains(msg.Error, "unknown mode") {
		t.Fatalf("expected unknown mode error got %q", msg.Error)
	}

	if err := conn.WriteJSON(wsCommand{Type: "dance"}); err != nil {
		t.Fatalf("send unknown command: %v", err)
	}
	if msg := readWS(t, conn, ofType("error")); !strings.Contains(msg.Error, "dance") {
		t.Fatalf("expected unknown command error got %q", msg.Error)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	if msg := readWS(t, conn, ofType("error")); msg.Error != "invalid command" {
		t.Fatalf("expected invalid command error got %q", msg.Error)
	}

	if err := conn.WriteJSON(wsCommand{Type: "reset"}); err != nil {
		t.Fatalf("send reset: %v", err)
	}
	readWS(t, conn, ofType("reset"))

	if err := conn.WriteJSON(wsCommand{Type: "ping"}); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	readWS(t, conn, ofType("pong"))

	if err := env.sessions.Close(view.ID); err != nil {
		t.Fatalf("close session: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("expected going-away close, got %v", err)
			}
			break
		}
	}
}
