package canonical

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MOHCentral/opm-stats-gateway/internal/models"
	"github.com/MOHCentral/opm-stats-gateway/internal/parser"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func element(fields map[string]interface{}) parser.Element {
	return parser.Element{Index: 0, Fields: fields}
}

func TestCanonicalize_Valid(t *testing.T) {
	c := New(nil)

	event, err := c.Canonicalize(element(map[string]interface{}{
		"type":      "player_kill",
		"match_id":  "m1",
		"timestamp": float64(1700000000),
		"weapon":    "shotgun",
		"headshot":  true,
		"distance":  12.5,
	}), "server-7", testNow)

	require.NoError(t, err)
	assert.Equal(t, "player_kill", event.Type)
	assert.Equal(t, "m1", event.MatchID)
	assert.Equal(t, "server-7", event.ServerID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.Timestamp)

	require.Len(t, event.Fields, 3)
	assert.True(t, event.Fields["weapon"].Equal(models.StringValue("shotgun")))
	assert.True(t, event.Fields["headshot"].Equal(models.BoolValue(true)))
	assert.True(t, event.Fields["distance"].Equal(models.NumberValue(12.5)))
}

func TestCanonicalize_RequiredFields(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name   string
		fields map[string]interface{}
		detail string
	}{
		{"missing type", map[string]interface{}{"match_id": "m1"}, "missing type"},
		{"empty type", map[string]interface{}{"type": "", "match_id": "m1"}, "missing type"},
		{"whitespace type", map[string]interface{}{"type": "  ", "match_id": "m1"}, "missing type"},
		{"non-string type", map[string]interface{}{"type": 42.0, "match_id": "m1"}, "type must be a string"},
		{"missing match_id", map[string]interface{}{"type": "a"}, "missing match_id"},
		{"empty match_id", map[string]interface{}{"type": "a", "match_id": " "}, "missing match_id"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Canonicalize(element(tc.fields), "s", testNow)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.detail)
		})
	}
}

func TestCanonicalize_TimestampDefaulting(t *testing.T) {
	c := New(nil)

	// Missing, unparsable, or non-positive timestamps fall back to the
	// receipt time; none of these fail the element.
	for _, fields := range []map[string]interface{}{
		{"type": "a", "match_id": "m"},
		{"type": "a", "match_id": "m", "timestamp": "not-a-number"},
		{"type": "a", "match_id": "m", "timestamp": true},
		{"type": "a", "match_id": "m", "timestamp": float64(-5)},
	} {
		event, err := c.Canonicalize(element(fields), "s", testNow)
		require.NoError(t, err)
		assert.Equal(t, testNow, event.Timestamp)
	}
}

func TestCanonicalize_TimestampUnits(t *testing.T) {
	c := New(nil)

	// Seconds.
	event, err := c.Canonicalize(element(map[string]interface{}{
		"type": "a", "match_id": "m", "timestamp": float64(1700000000),
	}), "s", testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), event.Timestamp.Unix())

	// Milliseconds.
	event, err = c.Canonicalize(element(map[string]interface{}{
		"type": "a", "match_id": "m", "timestamp": float64(1700000000500),
	}), "s", testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), event.Timestamp.Unix())
	assert.Equal(t, 500, event.Timestamp.Nanosecond()/1e6)

	// Numeric string (legacy path).
	event, err = c.Canonicalize(element(map[string]interface{}{
		"type": "a", "match_id": "m", "timestamp": "1700000000",
	}), "s", testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), event.Timestamp.Unix())
}

func TestCanonicalize_ServerIDNeverTrusted(t *testing.T) {
	c := New(nil)

	event, err := c.Canonicalize(element(map[string]interface{}{
		"type":      "a",
		"match_id":  "m",
		"server_id": "spoofed",
		"weapon":    "pistol",
	}), "server-7", testNow)

	require.NoError(t, err)
	assert.Equal(t, "server-7", event.ServerID)
	_, present := event.Fields["server_id"]
	assert.False(t, present, "client-supplied server_id must be stripped")
	// Stripping is silent, not an error, and siblings survive.
	assert.Contains(t, event.Fields, "weapon")
}

func TestCanonicalize_NonScalarField(t *testing.T) {
	c := New(nil)

	_, err := c.Canonicalize(element(map[string]interface{}{
		"type": "a", "match_id": "m",
		"loadout": map[string]interface{}{"primary": "rifle"},
	}), "s", testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loadout")
}

func TestCanonicalize_AllowList(t *testing.T) {
	c := New([]string{"match_start", "round_end"})

	_, err := c.Canonicalize(element(map[string]interface{}{
		"type": "match_start", "match_id": "m",
	}), "s", testNow)
	assert.NoError(t, err)

	_, err = c.Canonicalize(element(map[string]interface{}{
		"type": "player_dance", "match_id": "m",
	}), "s", testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestCanonicalize_Idempotent(t *testing.T) {
	c := New(nil)
	fields := map[string]interface{}{
		"type": "a", "match_id": "m", "timestamp": float64(1700000000),
		"weapon": "knife", "streak": float64(3),
	}

	first, err := c.Canonicalize(element(fields), "s", testNow)
	require.NoError(t, err)
	second, err := c.Canonicalize(element(fields), "s", testNow)
	require.NoError(t, err)

	assert.Equal(t, first.Document(), second.Document())
}

func TestLoadAllowList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte("types:\n  - match_start\n  - player_jump\n"), 0o644))

	types, err := LoadAllowList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"match_start", "player_jump"}, types)

	_, err = LoadAllowList(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
