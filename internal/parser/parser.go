// Package parser turns a raw batch body into an ordered sequence of
// untyped event descriptors. Two encodings of the same logical stream are
// supported so producers can migrate file-by-file: a JSON array of
// objects, and the legacy newline-delimited URL-encoded lines.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Format identifies which grammar a request body used.
type Format string

const (
	FormatJSONBatch   Format = "json_batch"
	FormatLegacyLines Format = "legacy_lines"
)

// ErrUnparsable is the request-level failure: the body matches neither
// supported grammar. Element-level problems never produce it.
var ErrUnparsable = errors.New("body matches no supported encoding")

// Element is one raw event descriptor in request order. If Err is set the
// element could not be decoded and Fields is nil; Raw always holds the
// source bytes for dead-letter purposes.
type Element struct {
	Index  int
	Fields map[string]interface{}
	Raw    []byte
	Err    error
}

// Parse detects the body's encoding and decodes it into elements.
//
// A body whose first significant byte is '[' must be a valid JSON array;
// the gateway never repairs truncated JSON, so an invalid array is a
// request-level failure and an array element that is not a complete
// object is an element-level failure. Any other body is treated as
// legacy lines, each decoded independently.
func Parse(body []byte) (Format, []Element, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil, fmt.Errorf("%w: empty body", ErrUnparsable)
	}

	if trimmed[0] == '[' {
		elements, err := parseJSONBatch(trimmed)
		if err != nil {
			return "", nil, err
		}
		return FormatJSONBatch, elements, nil
	}

	elements, err := parseLegacyLines(trimmed)
	if err != nil {
		return "", nil, err
	}
	return FormatLegacyLines, elements, nil
}

func parseJSONBatch(body []byte) ([]Element, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON array: %v", ErrUnparsable, err)
	}

	elements := make([]Element, 0, len(raw))
	for i, msg := range raw {
		el := Element{Index: i, Raw: msg}
		var fields map[string]interface{}
		if err := json.Unmarshal(msg, &fields); err != nil {
			el.Err = fmt.Errorf("element is not a JSON object: %w", err)
		} else if fields == nil {
			// A literal null unmarshals into a nil map without error.
			el.Err = errors.New("element is not a JSON object")
		} else {
			el.Fields = fields
		}
		elements = append(elements, el)
	}
	return elements, nil
}

func parseLegacyLines(body []byte) ([]Element, error) {
	lines := strings.Split(string(body), "\n")

	elements := make([]Element, 0, len(lines))
	index := 0
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		el := Element{Index: index, Raw: []byte(line)}
		el.Fields, el.Err = decodeLine(line)
		elements = append(elements, el)
		index++
	}

	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrUnparsable)
	}
	return elements, nil
}

func decodeLine(line string) (map[string]interface{}, error) {
	if !strings.Contains(line, "=") {
		return nil, errors.New("not a key=value record")
	}
	values, err := url.ParseQuery(line)
	if err != nil {
		return nil, fmt.Errorf("invalid url encoding: %w", err)
	}

	// Legacy values are always strings; numeric and boolean semantics
	// are lost on this path. Duplicate keys keep the first occurrence.
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		} else {
			fields[k] = ""
		}
	}
	return fields, nil
}
