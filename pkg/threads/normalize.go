package threads

import (
	"encoding/json"
	"sort"
	"strconv"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

// The messages-fetch endpoint is duck-typed upstream: the body may be a
// bare array of messages, an object wrapping a "messages" array, or a
// flat object map keyed by index. The shape is identified once at this
// boundary and normalized into the canonical ordered sequence before any
// downstream code sees it.

type payloadShape int

const (
	shapeList payloadShape = iota
	shapeWrapped
	shapeMap
)

func (s payloadShape) String() string {
	switch s {
	case shapeList:
		return "list"
	case shapeWrapped:
		return "wrapped"
	case shapeMap:
		return "map"
	}
	return "unknown"
}

type rawMessage struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
	TS      int64   `json:"timestamp"`
}

// NormalizeMessages decodes any of the three accepted shapes into an
// ordered []models.Message, dropping entries missing role or content.
func NormalizeMessages(data []byte) ([]models.Message, error) {
	shape, entries, err := splitPayload(data)
	if err != nil {
		return nil, err
	}
	logger.Debug("messages_normalized", "shape", shape.String(), "entries", len(entries))
	out := make([]models.Message, 0, len(entries))
	for _, e := range entries {
		var rm rawMessage
		if err := json.Unmarshal(e, &rm); err != nil {
			continue
		}
		if rm.Role == nil || *rm.Role == "" || rm.Content == nil {
			continue
		}
		out = append(out, models.Message{Role: *rm.Role, Content: *rm.Content, TS: rm.TS})
	}
	return out, nil
}

// splitPayload identifies the payload shape and returns its entries in
// order. Map-shaped payloads are ordered by numeric key; non-numeric keys
// sort after numeric ones, lexically.
func splitPayload(data []byte) (payloadShape, []json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return shapeList, list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return 0, nil, &models.MalformedResponseError{Op: "messages_fetch", Shape: "neither array nor object"}
	}

	if wrapped, ok := obj["messages"]; ok {
		if err := json.Unmarshal(wrapped, &list); err != nil {
			return 0, nil, &models.MalformedResponseError{Op: "messages_fetch", Shape: "messages field is not an array"}
		}
		return shapeWrapped, list, nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	entries := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, obj[k])
	}
	return shapeMap, entries, nil
}
