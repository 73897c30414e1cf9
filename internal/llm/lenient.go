package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// LocateJSONObject finds the first JSON object in a free-text completion.
//
// It stream-decodes one value starting at the first '{', which tolerates prose
// or a second object after it. When that fails (for instance on a truncated
// trailing brace inside prose) it falls back to the greedy slice from the first
// '{' to the last '}'. The returned bytes are not guaranteed to be valid JSON in
// the fallback case; callers still decode them.
func LocateJSONObject(content string) ([]byte, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(content[start:]))
	dec.UseNumber()
	var raw json.RawMessage
	if err := dec.Decode(&raw); err == nil && len(raw) > 0 && raw[0] == '{' {
		return bytes.TrimSpace(raw), true
	}

	end := strings.LastIndexByte(content, '}')
	if end < start {
		return nil, false
	}
	return []byte(content[start : end+1]), true
}
