// Package unwrap normalizes the envelopes LLM CLIs wrap around model output: plain text, a single Claude/Gemini JSON object,
// or an opencode JSONL event stream.
package unwrap

import (
	"bufio"
	"encoding/json"
	"strings"
)

// Marker reports whether text looks like a domain artifact. A nil Marker accepts everything.
type Marker func(text string) bool

const minDenialContent = 20

// Response returns the model's response text from raw. It never fails: unrecognized input is returned unchanged.
func Response(raw string) string {
	text := raw
	events, stream := parseJSONL(raw)
	if stream {
		text = joinTextEvents(events)
	}

	if obj, ok := parseObject(raw); ok {
		if result, ok := obj["result"]; ok {
			return asText(result)
		}
	}

	if !stream {
		if resp, ok := geminiResponse(raw); ok {
			return resp
		}
	}
	return text
}

// Resolve returns the working text for a domain: the response, or, when it fails marker, the longest written-file payload
// that passes marker.
func Resolve(raw string, marker Marker) string {
	text := Response(raw)
	if marker == nil || marker(text) {
		return text
	}
	if denied := PermissionDenialContent(raw, marker); denied != "" {
		return denied
	}
	return text
}

// PermissionDenialContent returns the longest file payload the model tried to write, or "" if none qualifies. Candidates must
// be longer than 20 characters and pass marker.
func PermissionDenialContent(raw string, marker Marker) string {
	candidates := claudeDenials(raw)
	if len(candidates) == 0 {
		candidates = jsonlWrites(raw)
	}

	best := ""
	for _, c := range candidates {
		if marker != nil && !marker(c) {
			continue
		}
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}

// Denials returns every Write-tool payload in a Claude object. Used by domains that apply their own acceptance test.
func Denials(raw string) []string {
	obj, ok := parseObject(raw)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range asSlice(obj["permission_denials"]) {
		denial, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if content, ok := asMap(denial["tool_input"])["content"].(string); ok {
			out = append(out, content)
		}
	}
	return out
}

func claudeDenials(raw string) []string {
	obj, ok := parseObject(raw)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range asSlice(obj["permission_denials"]) {
		denial, ok := item.(map[string]any)
		if !ok || denial["tool_name"] != "Write" {
			continue
		}
		content, ok := asMap(denial["tool_input"])["content"].(string)
		if ok && len(content) > minDenialContent {
			out = append(out, content)
		}
	}
	return out
}

func jsonlWrites(raw string) []string {
	if !looksLikeJSONL(raw) {
		return nil
	}
	var out []string
	for _, evt := range scanObjects(raw) {
		if evt["type"] != "tool_use" {
			continue
		}
		part := asMap(evt["part"])
		if part["tool"] != "write" {
			continue
		}
		content, ok := asMap(asMap(part["state"])["input"])["content"].(string)
		if ok && len(content) > minDenialContent {
			out = append(out, content)
		}
	}
	return out
}

func looksLikeJSONL(raw string) bool {
	return strings.Contains(raw, "\n") && strings.HasPrefix(strings.TrimLeft(raw, " \t\r\n"), "{")
}

// parseJSONL returns the decoded events when raw is an opencode stream, identified by any event carrying type and sessionID.
func parseJSONL(raw string) ([]map[string]any, bool) {
	if !looksLikeJSONL(raw) {
		return nil, false
	}
	events := scanObjects(raw)
	for _, evt := range events {
		_, hasType := evt["type"]
		_, hasSession := evt["sessionID"]
		if hasType && hasSession {
			return events, true
		}
	}
	return nil, false
}

func joinTextEvents(events []map[string]any) string {
	var parts []string
	for _, evt := range events {
		if evt["type"] != "text" {
			continue
		}
		if _, ok := evt["sessionID"]; !ok {
			continue
		}
		if text, ok := asMap(evt["part"])["text"].(string); ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// scanObjects decodes each line of raw as a JSON object, skipping lines that are not.
func scanObjects(raw string) []map[string]any {
	scanner := bufio.NewScanner(strings.NewReader(strings.TrimSpace(raw)))
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, max(len(raw)+1, 1024*1024))

	var out []map[string]any
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err != nil || payload == nil {
			continue
		}
		out = append(out, payload)
	}
	return out
}

func parseObject(raw string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// geminiResponse handles a banner such as "Loaded cached credentials." followed by one JSON object with a response field.
// The object must run to the end of the text, and when a banner precedes it the object must also carry the CLI's stats or
// session_id, so prose that merely ends in JSON stays untouched.
func geminiResponse(raw string) (string, bool) {
	obj, ok := geminiObject(raw)
	if !ok {
		return "", false
	}
	resp, ok := obj["response"].(string)
	return resp, ok
}

func geminiObject(raw string) (map[string]any, bool) {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "{") {
			continue
		}
		obj, ok := parseObject(strings.Join(lines[i:], "\n"))
		if !ok {
			return nil, false
		}
		if i > 0 && !hasAnyKey(obj, "stats", "session_id") {
			return nil, false
		}
		return obj, true
	}
	return nil, false
}

func hasAnyKey(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func asText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
