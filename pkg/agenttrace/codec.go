package agenttrace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// SplitRecords splits a wire payload holding either a single record object or
// an array of record objects into the raw JSON of each record.
func SplitRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decoding record array: %w", err)
		}
		return raws, nil
	case '{':
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	default:
		return nil, errors.New("payload is neither a record object nor an array of records")
	}
}

// DecodeTraces validates every record in data. Invalid records are returned
// as errors alongside the valid ones so callers can skip and log them.
func DecodeTraces(data []byte) ([]*AgentTrace, []error, error) {
	raws, err := SplitRecords(data)
	if err != nil {
		return nil, nil, err
	}

	traces := make([]*AgentTrace, 0, len(raws))
	var invalid []error
	for i, raw := range raws {
		trace, verrs := Validate(raw)
		if len(verrs) > 0 {
			invalid = append(invalid, fmt.Errorf("record %d: %w", i, JoinValidationErrors(verrs)))
			continue
		}
		traces = append(traces, trace)
	}

	return traces, invalid, nil
}

// EncodeTraces serializes traces as a pretty-printed JSON array.
func EncodeTraces(traces []*AgentTrace) ([]byte, error) {
	out := make([]*AgentTrace, 0, len(traces))
	for _, t := range traces {
		if t == nil {
			continue
		}
		if t.Files == nil {
			t = t.Clone()
			t.Files = []File{}
		}
		out = append(out, t)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding traces: %w", err)
	}
	return append(data, '\n'), nil
}
