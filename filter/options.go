package filter

import (
	"strconv"
)

// Summarization strategy option keys.
const (
	OptionEnabled      = "enabled"
	OptionMinMessages  = "min_messages"
	OptionTargetTokens = "target_tokens"
	OptionBackend      = "backend"
	OptionModel        = "model"
	OptionSystemPrompt = "system_prompt"
)

// Option maps come from YAML (int) or JSON (float64), so lookups accept
// any numeric or string form.

func optInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func optBool(opts map[string]any, key string, def bool) bool {
	switch v := opts[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func optString(opts map[string]any, key string, def string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return def
}
