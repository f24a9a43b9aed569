package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const buyEventPrefix = "buy-event-"

var (
	restartKeywords = map[string]bool{
		"restart":    true,
		"reset":      true,
		"start over": true,
	}

	spaces   = regexp.MustCompile(`\s+`)
	validate = validator.New()
)

// normalizeCommand lowercases and collapses whitespace
func normalizeCommand(text string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

func isRestart(text string) bool {
	return restartKeywords[normalizeCommand(text)]
}

// parseBuyEvent extracts the event id from "buy-event-<id>"
func parseBuyEvent(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if len(t) <= len(buyEventPrefix) || !strings.EqualFold(t[:len(buyEventPrefix)], buyEventPrefix) {
		return "", false
	}
	id := t[len(buyEventPrefix):]
	if strings.ContainsAny(id, " \t\r\n") {
		return "", false
	}
	return id, true
}

// parsePositiveInt accepts plain base-10 integers greater than zero
func parsePositiveInt(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func parseEmail(text string) (string, bool) {
	email := strings.TrimSpace(text)
	if validate.Var(email, "required,email") != nil {
		return "", false
	}
	return strings.ToLower(email), true
}
