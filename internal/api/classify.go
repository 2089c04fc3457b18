package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Messages for HTML error pages served by proxies in front of the API.
const (
	msgTemporarilyUnavailable = "The server is temporarily unavailable. Please try again shortly."
	msgUnreachable            = "Unable to reach the server. Please try again later."
	msgRequestFailed          = "Request failed"
)

// ClassifyError turns a failed response body into one user-facing message.
// statusText is the reason phrase from the status line; when empty the
// standard phrase for status is used. It never panics and never returns "".
func ClassifyError(body []byte, status int, statusText string) (msg string) {
	phrase := statusText
	if phrase == "" {
		phrase = http.StatusText(status)
	}
	if phrase == "" {
		phrase = msgRequestFailed
	}

	defer func() {
		if r := recover(); r != nil || msg == "" {
			msg = phrase
		}
	}()

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return phrase
	}

	if isHTML(trimmed) {
		lower := strings.ToLower(string(trimmed))
		if strings.Contains(lower, "gateway offline") || strings.Contains(lower, "502") || strings.Contains(lower, "503") {
			return msgTemporarilyUnavailable
		}
		return msgUnreachable
	}

	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return phrase
	}

	for _, key := range []string{"detail", "message", "error"} {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		if m := describe(v); m != "" {
			return m
		}
	}
	return phrase
}

func isHTML(body []byte) bool {
	n := len(body)
	if n > 64 {
		n = 64
	}
	head := strings.ToLower(string(body[:n]))
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}

// describe renders one of detail/message/error.
func describe(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case []any:
		return validationMessage(d)
	case map[string]any:
		for _, key := range []string{"message", "error"} {
			if s, ok := d[key].(string); ok && s != "" {
				return s
			}
		}
		b, err := json.Marshal(d)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(d)
	}
}

// validationMessage joins a list of {loc, msg} items into
// "Field Name: msg. Other Field: msg".
func validationMessage(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case string:
			parts = append(parts, it)
		case map[string]any:
			msg, _ := it["msg"].(string)
			if msg == "" {
				continue
			}
			if field := fieldName(it["loc"]); field != "" {
				msg = field + ": " + msg
			}
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, ". ")
}

// fieldName returns the last string element of loc, humanized.
func fieldName(loc any) string {
	list, ok := loc.([]any)
	if !ok {
		return ""
	}
	for i := len(list) - 1; i >= 0; i-- {
		if s, ok := list[i].(string); ok && s != "" {
			return humanize(s)
		}
	}
	return ""
}

func humanize(field string) string {
	field = strings.NewReplacer("_", " ", "-", " ").Replace(field)
	// Casers carry state and are not shared across goroutines.
	return cases.Title(language.English).String(strings.Join(strings.Fields(field), " "))
}
