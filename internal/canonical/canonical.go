// Package canonical maps raw event descriptors to canonical events,
// applying the same validation rules to both wire encodings.
package canonical

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MOHCentral/opm-stats-gateway/internal/models"
	"github.com/MOHCentral/opm-stats-gateway/internal/parser"
)

// Reserved keys handled outside the open extension bag.
const (
	keyType      = "type"
	keyMatchID   = "match_id"
	keyTimestamp = "timestamp"
	keyServerID  = "server_id"
)

// Timestamps at or above this magnitude are interpreted as milliseconds
// since epoch, smaller values as seconds.
const millisThreshold = 1e12

// Canonicalizer converts raw descriptors into canonical events. The
// allow-list, when non-empty, restricts accepted event types; an empty
// list accepts any type (open extension). Read-only after construction,
// safe for concurrent use.
type Canonicalizer struct {
	allowed map[string]struct{}
}

func New(allowedTypes []string) *Canonicalizer {
	c := &Canonicalizer{}
	if len(allowedTypes) > 0 {
		c.allowed = make(map[string]struct{}, len(allowedTypes))
		for _, t := range allowedTypes {
			c.allowed[strings.TrimSpace(t)] = struct{}{}
		}
	}
	return c
}

// LoadAllowList reads an event-type allow-list from a YAML file of the
// form: `types: [match_start, player_jump]`.
func LoadAllowList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}
	var doc struct {
		Types []string `yaml:"types"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse allow-list: %w", err)
	}
	return doc.Types, nil
}

// Canonicalize validates and normalizes one descriptor. serverID comes
// from the authenticated session; a server_id key arriving in the body is
// discarded silently, never trusted. now supplies the timestamp when the
// descriptor carries none. Errors are element-local validation failures.
func (c *Canonicalizer) Canonicalize(el parser.Element, serverID string, now time.Time) (models.CanonicalEvent, error) {
	event := models.CanonicalEvent{ServerID: serverID}

	evType, err := requiredString(el.Fields, keyType)
	if err != nil {
		return event, err
	}
	matchID, err := requiredString(el.Fields, keyMatchID)
	if err != nil {
		return event, err
	}
	event.Type = evType
	event.MatchID = matchID

	if c.allowed != nil {
		if _, ok := c.allowed[evType]; !ok {
			return event, fmt.Errorf("event type %q not allowed", evType)
		}
	}

	event.Timestamp = resolveTimestamp(el.Fields[keyTimestamp], now)

	event.Fields = make(map[string]models.Value, len(el.Fields))
	for k, raw := range el.Fields {
		switch k {
		case keyType, keyMatchID, keyTimestamp, keyServerID:
			continue
		}
		v, err := models.FromAny(raw)
		if err != nil {
			return event, fmt.Errorf("field %q: %v", k, err)
		}
		event.Fields[k] = v
	}

	return event, nil
}

func requiredString(fields map[string]interface{}, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("missing %s", key)
	}
	return s, nil
}

// resolveTimestamp parses a numeric timestamp in seconds or milliseconds
// since epoch. Missing or unparsable values fall back to the gateway's
// receipt time; a bad timestamp alone never fails an element.
func resolveTimestamp(raw interface{}, now time.Time) time.Time {
	var epoch float64
	switch t := raw.(type) {
	case float64:
		epoch = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return now
		}
		epoch = parsed
	default:
		return now
	}

	if epoch <= 0 {
		return now
	}
	if epoch >= millisThreshold {
		epoch /= 1000
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
