package server

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"whispbox/internal/config"

	"github.com/gorilla/websocket"
)

func dialSession(t *testing.T, tsURL, sessionID string, player testPlayer) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(tsURL, "http") + "/ws/sessions/" + sessionID
	if player.ID != 0 {
		wsURL += "?player_id=" + strconv.Itoa(player.ID) + "&auth_token=" + player.Token
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func readWSPayload(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode ws message: %v", err)
	}
	return payload
}

func TestWebsocketSnapshotOnSubscribe(t *testing.T) {
	srv := New(nil, config.Default())
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	sessionID := createSession(t, ts)
	joinPlayer(t, ts, sessionID, "Ada")

	conn := dialSession(t, ts.URL, sessionID, testPlayer{})
	first := readWSPayload(t, conn, 5*time.Second)
	if _, ok := first["session"]; !ok {
		t.Fatalf("expected first message to be a full snapshot, got %v", first)
	}
	if first["status"] != statusWaiting {
		t.Fatalf("expected waiting status, got %v", first["status"])
	}
}

func TestWebsocketBroadcastsJoinHint(t *testing.T) {
	srv := New(nil, config.Default())
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	sessionID := createSession(t, ts)
	joinPlayer(t, ts, sessionID, "Ada")

	conn := dialSession(t, ts.URL, sessionID, testPlayer{})
	readWSPayload(t, conn, 5*time.Second)

	ben := joinPlayer(t, ts, sessionID, "Ben")
	hint := readWSPayload(t, conn, 5*time.Second)
	if hint["type"] != eventPlayerJoined {
		t.Fatalf("expected player_joined hint, got %v", hint["type"])
	}
	payload := hint["payload"].(map[string]any)
	if int(payload["player_id"].(float64)) != ben.ID {
		t.Fatalf("expected joining player id %d, got %v", ben.ID, payload["player_id"])
	}
	if _, ok := hint["timestamp"]; !ok {
		t.Fatalf("expected timestamp on envelope")
	}
}

func TestWebsocketSecretNeverBroadcast(t *testing.T) {
	srv := New(nil, config.Default())
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	sessionID := createSession(t, ts)
	ada := joinPlayer(t, ts, sessionID, "Ada")
	ben := joinPlayer(t, ts, sessionID, "Ben")
	startGame(t, ts, sessionID, ada)
	selectTheme(t, ts, sessionID, ada, "travel")

	conn := dialSession(t, ts.URL, sessionID, ben)
	snapshot := readWSPayload(t, conn, 5*time.Second)
	turn := snapshot["active_turn"].(map[string]any)
	if _, leaked := turn["secret"]; leaked {
		t.Fatalf("snapshot leaked secret to guesser connection")
	}

	saveSecret(t, ts, sessionID, ada, "Volcano")
	hint := readWSPayload(t, conn, 5*time.Second)
	if hint["type"] != eventSecretSelected {
		t.Fatalf("expected secret_selected hint, got %v", hint["type"])
	}
	data, _ := json.Marshal(hint)
	if strings.Contains(string(data), "Volcano") {
		t.Fatalf("broadcast carried the secret value: %s", data)
	}
}

func TestHostDisconnectEndsSession(t *testing.T) {
	srv := New(nil, config.Default())
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	sessionID := createSession(t, ts)
	ada := joinPlayer(t, ts, sessionID, "Ada")
	joinPlayer(t, ts, sessionID, "Ben")

	hostConn := dialSession(t, ts.URL, sessionID, ada)
	readWSPayload(t, hostConn, 5*time.Second)
	_ = hostConn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		session, ok := srv.store.GetSession(sessionID)
		if ok && session.Status == statusCompleted {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected session to end after host disconnect")
}

func TestForgedHostConnectionDoesNotEndSession(t *testing.T) {
	srv := New(nil, config.Default())
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	sessionID := createSession(t, ts)
	ada := joinPlayer(t, ts, sessionID, "Ada")
	ben := joinPlayer(t, ts, sessionID, "Ben")

	// Ben connects quoting the host's id with his own credential; the
	// connection degrades to a spectator and its loss must not tear the
	// session down.
	conn := dialSession(t, ts.URL, sessionID, testPlayer{ID: ada.ID, Token: ben.Token})
	readWSPayload(t, conn, 5*time.Second)
	_ = conn.Close()

	time.Sleep(200 * time.Millisecond)
	session, ok := srv.store.GetSession(sessionID)
	if !ok || session.Status == statusCompleted {
		t.Fatalf("expected session to survive forged host disconnect")
	}
}
