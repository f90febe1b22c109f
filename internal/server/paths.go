package server

import (
	"strconv"
	"strings"
)

func parseSessionPath(path string) (string, string, bool) {
	const prefix = "/api/sessions/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", "", false
	}
	sessionID := parts[0]
	if len(parts) == 1 {
		return sessionID, "", true
	}
	if len(parts) == 2 {
		return sessionID, parts[1], true
	}
	return "", "", false
}

func parseWebsocketPath(path string) (string, bool) {
	const prefix = "/ws/sessions/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

func parseRecordingPath(path string) (string, int, bool) {
	const prefix = "/api/sessions/"
	if !strings.HasPrefix(path, prefix) {
		return "", 0, false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 4 {
		return "", 0, false
	}
	if parts[1] != "turns" || parts[3] != "recording" {
		return "", 0, false
	}
	number, err := strconv.Atoi(parts[2])
	if err != nil || number <= 0 {
		return "", 0, false
	}
	return parts[0], number, true
}
