package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

func decodeAudioData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, errors.New("no audio data")
	}
	parts := strings.SplitN(data, ",", 2)
	if len(parts) == 2 {
		data = parts[1]
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if len(decoded) > maxAudioBytes {
		return nil, errors.New("recording too large")
	}
	return decoded, nil
}

func recordingURL(sessionID string, number int) string {
	return fmt.Sprintf("/api/sessions/%s/turns/%d/recording", sessionID, number)
}
