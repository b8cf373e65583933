package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValue_FromAny(t *testing.T) {
	if v, err := FromAny("hello"); err != nil || v.Kind() != KindString || v.Str() != "hello" {
		t.Errorf("string conversion failed: %v %v", v, err)
	}
	if v, err := FromAny(3.5); err != nil || v.Kind() != KindNumber || v.Num() != 3.5 {
		t.Errorf("number conversion failed: %v %v", v, err)
	}
	if v, err := FromAny(true); err != nil || v.Kind() != KindBool || !v.Bool() {
		t.Errorf("bool conversion failed: %v %v", v, err)
	}

	for _, bad := range []interface{}{nil, map[string]interface{}{}, []interface{}{1.0}} {
		if _, err := FromAny(bad); err == nil {
			t.Errorf("expected error for %T", bad)
		}
	}
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{
		"s": StringValue("x"),
		"n": NumberValue(2),
		"b": BoolValue(false),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]Value
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded["s"].Equal(StringValue("x")) || !decoded["n"].Equal(NumberValue(2)) || !decoded["b"].Equal(BoolValue(false)) {
		t.Errorf("round trip mismatch: %v", decoded)
	}

	var v Value
	if err := json.Unmarshal([]byte(`{"nested":1}`), &v); err == nil {
		t.Error("expected error for non-scalar value")
	}
}

func TestValue_EqualAcrossKinds(t *testing.T) {
	if StringValue("1").Equal(NumberValue(1)) {
		t.Error("values of different kinds must not compare equal")
	}
}

func TestCanonicalEvent_Document(t *testing.T) {
	event := CanonicalEvent{
		Type:      "player_kill",
		MatchID:   "m1",
		ServerID:  "server-7",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Fields: map[string]Value{
			"weapon": StringValue("shotgun"),
		},
	}

	doc := event.Document()
	if doc["type"] != "player_kill" || doc["match_id"] != "m1" || doc["server_id"] != "server-7" {
		t.Errorf("unexpected document: %v", doc)
	}
	if doc["timestamp"] != "2023-11-14T22:13:20Z" {
		t.Errorf("unexpected timestamp rendering: %v", doc["timestamp"])
	}
	if _, ok := doc["weapon"]; !ok {
		t.Error("extension field missing from document")
	}
}
