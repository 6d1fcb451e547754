package ingest

import (
	"testing"
	"time"
)

func TestDecodeEnvelope(t *testing.T) {
	payload := []byte(`{"signal":"cpu_load","value":92.5,"fields":{"used":92.5},"timestamp":"2026-08-30T10:15:00Z"}`)
	in, err := decodeEnvelope(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.SignalKey != "cpu_load" || in.Value != 92.5 {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.FieldValues["used"] != 92.5 {
		t.Fatalf("fields = %v", in.FieldValues)
	}
	want := time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC)
	if !in.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v", in.Timestamp)
	}
	if !in.Checked {
		t.Fatal("checked must default to true")
	}
}

func TestDecodeEnvelopeUnchecked(t *testing.T) {
	in, err := decodeEnvelope([]byte(`{"signal":"cpu_load","value":1,"checked":false}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Checked {
		t.Fatal("explicit checked=false must carry through")
	}
	if !in.Timestamp.IsZero() {
		t.Fatalf("timestamp must stay zero when omitted, got %v", in.Timestamp)
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	cases := map[string]string{
		"malformed json": `{"signal":`,
		"missing signal": `{"value":1}`,
		"bad timestamp":  `{"signal":"x","value":1,"timestamp":"yesterday"}`,
	}
	for name, payload := range cases {
		if _, err := decodeEnvelope([]byte(payload)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
