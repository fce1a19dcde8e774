package apiclient

import (
	"encoding/json"
	"sort"
	"strings"
)

// listKeys hold arrays of errors rather than a single field's errors.
var listKeys = []string{"errors", "non_field_errors"}

// ExtractMessage pulls a human-readable message out of an error body.
// Priority: message, detail, error (string or {message}), then the first
// field error. Field keys are visited in sorted order so the result is
// stable. Returns "" when nothing readable is found.
func ExtractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}

	switch v := data.(type) {
	case map[string]interface{}:
		return messageFromObject(v)
	case []interface{}:
		return firstMessage(v)
	case string:
		return strings.TrimSpace(v)
	}
	return ""
}

func messageFromObject(obj map[string]interface{}) string {
	for _, key := range []string{"message", "detail", "error"} {
		if msg := messageFromValue(obj[key]); msg != "" {
			return msg
		}
	}

	for _, key := range listKeys {
		if msg := messageFromValue(obj[key]); msg != "" {
			return msg
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch key {
		case "message", "detail", "error", "success", "code", "status":
			continue
		}
		if msg := messageFromValue(obj[key]); msg != "" {
			return msg
		}
	}
	return ""
}

// messageFromValue reads a message out of a field value: a string, a list of
// strings or objects, or a nested {message}/{detail} object.
func messageFromValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []interface{}:
		return firstMessage(val)
	case map[string]interface{}:
		return messageFromObject(val)
	}
	return ""
}

func firstMessage(list []interface{}) string {
	for _, item := range list {
		switch it := item.(type) {
		case string:
			if s := strings.TrimSpace(it); s != "" {
				return s
			}
		case map[string]interface{}:
			if msg := messageFromObject(it); msg != "" {
				return msg
			}
		}
	}
	return ""
}
