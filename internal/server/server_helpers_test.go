package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testAudioData = "data:audio/webm;base64,GkXfo59ChoEBQveBAULygQRC84EIQoKEd2VibUKHgQRChYECGFOAZwEAAAAAAAHTEU2bdLpNu4tTq4QVSalmU6yBoU27i1OrhBZUrmtTrIHGTbuMU6uEElTDZ1OsggEXTbuMU6uEHFO7a1OsggG97AEAAAAAAABZAAAAAAAAAAA="

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	sessionID, _ := createSessionWithCode(t, ts)
	return sessionID
}

func createSessionWithCode(t *testing.T, ts *httptest.Server) (string, string) {
	t.Helper()
	return createSessionWithOptions(t, ts, map[string]any{})
}

func createSessionWithOptions(t *testing.T, ts *httptest.Server, options map[string]any) (string, string) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/sessions", options)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return body["session_id"].(string), body["join_code"].(string)
}

// testPlayer pairs a player id with the credential issued at join.
type testPlayer struct {
	ID    int
	Token string
}

func joinPlayer(t *testing.T, ts *httptest.Server, sessionID, name string) testPlayer {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/join", map[string]string{
		"name": name,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return testPlayer{
		ID:    int(body["player_id"].(float64)),
		Token: body["auth_token"].(string),
	}
}

func startGame(t *testing.T, ts *httptest.Server, sessionID string, host testPlayer) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/start", map[string]any{
		"player_id":  host.ID,
		"auth_token": host.Token,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func selectTheme(t *testing.T, ts *httptest.Server, sessionID string, player testPlayer, themeID string) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/theme", map[string]any{
		"player_id":  player.ID,
		"auth_token": player.Token,
		"theme_id":   themeID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func saveSecret(t *testing.T, ts *httptest.Server, sessionID string, player testPlayer, secret string) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/secret", map[string]any{
		"player_id":  player.ID,
		"auth_token": player.Token,
		"secret":     secret,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func uploadRecording(t *testing.T, ts *httptest.Server, sessionID string, player testPlayer) string {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/recording", map[string]any{
		"player_id":  player.ID,
		"auth_token": player.Token,
		"audio_data": testAudioData,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return body["media_url"].(string)
}

func submitGuessRequest(t *testing.T, ts *httptest.Server, sessionID string, player testPlayer, roundNumber int, guess string) map[string]any {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/sessions/"+sessionID+"/guesses", map[string]any{
		"player_id":    player.ID,
		"auth_token":   player.Token,
		"round_number": roundNumber,
		"guess":        guess,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	return decodeBody(t, resp)
}

func fetchSnapshot(t *testing.T, ts *httptest.Server, sessionID string, player testPlayer) map[string]any {
	t.Helper()
	path := fmt.Sprintf("/api/sessions/%s?player_id=%d&auth_token=%s", sessionID, player.ID, player.Token)
	resp := doRequest(t, ts, http.MethodGet, path, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	return decodeBody(t, resp)
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func assertString(t *testing.T, value any) {
	t.Helper()
	if _, ok := value.(string); !ok {
		t.Fatalf("expected string, got %T", value)
	}
}
