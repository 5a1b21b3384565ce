package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/postmaster/id"
)

func TestConstructorsCarryPrefix(t *testing.T) {
	if got := id.NewMessageID().String(); !strings.HasPrefix(got, "msg_") {
		t.Errorf("NewMessageID() = %q, want msg_ prefix", got)
	}
	if got := id.NewDLQID().String(); !strings.HasPrefix(got, "dlq_") {
		t.Errorf("NewDLQID() = %q, want dlq_ prefix", got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := id.NewMessageID()
	parsed, err := id.ParseMessageID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed != original {
		t.Errorf("round-trip mismatch: %q != %q", parsed, original)
	}
}

func TestParseRejectsWrongPrefix(t *testing.T) {
	if _, err := id.ParseMessageID(id.NewDLQID().String()); err == nil {
		t.Error("expected error parsing a dlq id as a message id")
	}
	if _, err := id.ParseDLQID(id.NewMessageID().String()); err == nil {
		t.Error("expected error parsing a message id as a dlq id")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "msg_", "not an id"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error", s)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" || i.Prefix() != "" {
		t.Errorf("nil ID rendered as %q/%q", i.String(), i.Prefix())
	}
}

func TestTextAndSQLRoundTrip(t *testing.T) {
	original := id.NewMessageID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var fromText id.ID
	if err := fromText.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if fromText != original {
		t.Errorf("text round-trip = %q, want %q", fromText, original)
	}

	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var fromSQL id.ID
	if err := fromSQL.Scan(val); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if fromSQL != original {
		t.Errorf("sql round-trip = %q, want %q", fromSQL, original)
	}

	var nilScanned id.ID
	if err := nilScanned.Scan(nil); err != nil || !nilScanned.IsNil() {
		t.Errorf("Scan(nil) = %v, nil=%v", err, nilScanned.IsNil())
	}
}

func TestUniqueness(t *testing.T) {
	if a, b := id.NewMessageID(), id.NewMessageID(); a == b {
		t.Errorf("two consecutive NewMessageID() calls returned %q", a)
	}
}
