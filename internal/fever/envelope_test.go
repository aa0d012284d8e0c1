package fever

import (
	"encoding/json"
	"testing"
)

func TestEnvelope_AuthFailureShape(t *testing.T) {
	env := NewEnvelope(false)

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `{"api_version":3,"auth":0}` {
		t.Errorf("auth-failure envelope = %s", raw)
	}
}

func TestEnvelope_AuthSuccess(t *testing.T) {
	env := NewEnvelope(true)

	if env.Get("auth") != 1 {
		t.Errorf("auth = %v, want 1", env.Get("auth"))
	}
	if env.Get("api_version") != APIVersion {
		t.Errorf("api_version = %v, want %d", env.Get("api_version"), APIVersion)
	}
}

func TestEnvelope_KeysMarshalInAttachmentOrder(t *testing.T) {
	env := NewEnvelope(true)
	env.Set("last_refreshed_on_time", 123)
	env.Set("unread_item_ids", "1,2,3")

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"api_version":3,"auth":1,"last_refreshed_on_time":123,"unread_item_ids":"1,2,3"}`
	if string(raw) != want {
		t.Errorf("envelope = %s, want %s", raw, want)
	}
}

func TestEnvelope_SetReplacesWithoutDuplicating(t *testing.T) {
	env := NewEnvelope(true)
	env.Set("total_items", 1)
	env.Set("total_items", 2)

	if env.Len() != 3 {
		t.Errorf("Len() = %d, want 3", env.Len())
	}
	if env.Get("total_items") != 2 {
		t.Errorf("total_items = %v, want 2", env.Get("total_items"))
	}
}

func TestEnvelope_Has(t *testing.T) {
	env := NewEnvelope(true)

	if !env.Has("auth") {
		t.Error("Has(auth) should be true")
	}
	if env.Has("items") {
		t.Error("Has(items) should be false before attachment")
	}
}
