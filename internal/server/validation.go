package server

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxNameLength   = 20
	maxGuessLength  = 60
	maxSecretLength = 60
	maxThemeLength  = 64
	maxAudioBytes   = 1024 * 1024
	maxClueElements = 8
	maxRoundsCount  = 20
	maxPhaseSeconds = 600
)

// clampPhaseSeconds normalizes a creator-supplied timer preset: non-positive
// means "use the server default", anything above the ceiling is capped.
func clampPhaseSeconds(value int) int {
	if value <= 0 {
		return 0
	}
	if value > maxPhaseSeconds {
		return maxPhaseSeconds
	}
	return value
}

func validateName(name string) (string, error) {
	return validateText("name", name, maxNameLength)
}

func validateGuess(text string) (string, error) {
	return validateText("guess", text, maxGuessLength)
}

func validateSecret(text string) (string, error) {
	return validateText("secret", text, maxSecretLength)
}

func validateThemeID(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errors.New("theme is required")
	}
	if len(trimmed) > maxThemeLength {
		return "", fmt.Errorf("theme must be %d characters or fewer", maxThemeLength)
	}
	for _, r := range trimmed {
		if r > 127 {
			return "", errors.New("theme contains unsupported characters")
		}
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '-' || r == '_' {
			continue
		}
		return "", errors.New("theme contains unsupported characters")
	}
	return trimmed, nil
}

func validateClueElements(elements []string) ([]string, error) {
	if len(elements) == 0 {
		return nil, errors.New("clue elements are required")
	}
	if len(elements) > maxClueElements {
		return nil, fmt.Errorf("at most %d clue elements", maxClueElements)
	}
	cleaned := make([]string, 0, len(elements))
	seen := make(map[string]struct{}, len(elements))
	for _, element := range elements {
		value, err := validateText("clue element", element, maxThemeLength)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[value]; dup {
			return nil, errors.New("duplicate clue element")
		}
		seen[value] = struct{}{}
		cleaned = append(cleaned, value)
	}
	return cleaned, nil
}

func validateText(label, text string, maxLen int) (string, error) {
	trimmed := normalizeText(text)
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if len(trimmed) > maxLen {
		return "", fmt.Errorf("%s must be %d characters or fewer", label, maxLen)
	}
	if !isSafeText(trimmed) {
		return "", fmt.Errorf("%s contains unsupported characters", label)
	}
	return trimmed, nil
}

func normalizeText(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	return strings.Join(fields, " ")
}

func isSafeText(text string) bool {
	for _, r := range text {
		if r > 127 {
			return false
		}
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		switch r {
		case ' ', '-', '_', '\'', '"', '.', ',', '!', '?', ':', ';', '&', '(', ')', '/':
			continue
		default:
			return false
		}
	}
	return true
}
