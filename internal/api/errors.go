package api

import (
	"encoding/json"
	"fmt"
)

// StatusError is a fatal backend condition that must surface at the
// request boundary with its HTTP status: a broken bootstrap, exhausted
// transport/auth retries, or rate limiting. Everything softer is returned
// as data (a Result carrying an "error" key) so one failed sub-call never
// takes down a whole page.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Code)
}

// softError builds the soft error envelope the callers inspect.
func softError(msg string, status int) Result {
	return Result{"error": fmt.Sprintf("%s (HTTP status code %d)", msg, status)}
}

// IsSoftError reports whether a Result is a soft error envelope.
func IsSoftError(r Result) bool {
	_, ok := r["error"]
	return ok
}

// errorMessage extracts the most specific message from a backend error
// body. Preference order: nested error.msg, top-level error string, a
// "reason" field holding an embedded JSON error, then the raw body.
func errorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}
	switch e := payload["error"].(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		if msg, ok := e["msg"].(string); ok && msg != "" {
			return msg
		}
	}
	// The reference resolver wraps its error in a JSON string under
	// "reason".
	if reason, ok := payload["reason"].(string); ok {
		var inner map[string]any
		if err := json.Unmarshal([]byte(reason), &inner); err == nil {
			if msg, ok := inner["error"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return string(body)
}
