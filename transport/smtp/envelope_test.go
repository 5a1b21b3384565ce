package smtp

import (
	"errors"
	"strings"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	raw := "From: Alice <alice@example.com>\r\n" +
		"To: bob@example.com, Carol <carol@example.com>\r\n" +
		"Cc: BOB@example.com\r\n" +
		"Bcc: dave@example.com,\r\n" +
		" erin@example.com\r\n" +
		"Subject: hi\r\n" +
		"\r\n" +
		"body\r\n"

	env, err := parseEnvelope([]byte(raw), "fallback@example.com")
	if err != nil {
		t.Fatalf("parseEnvelope: %v", err)
	}
	if env.from != "alice@example.com" {
		t.Errorf("from = %q, want %q", env.from, "alice@example.com")
	}
	want := []string{"bob@example.com", "carol@example.com", "dave@example.com", "erin@example.com"}
	if strings.Join(env.to, ",") != strings.Join(want, ",") {
		t.Errorf("to = %v, want %v", env.to, want)
	}
	data := string(env.data)
	if strings.Contains(strings.ToLower(data), "bcc") || strings.Contains(data, "erin") {
		t.Errorf("Bcc leaked into data:\n%s", data)
	}
	if !strings.HasSuffix(data, "Subject: hi\r\n\r\nbody\r\n") {
		t.Errorf("data tail mangled:\n%q", data)
	}
}

func TestParseEnvelope_DefaultFrom(t *testing.T) {
	env, err := parseEnvelope([]byte("To: bob@example.com\n\nhello\n"), "noreply@example.com")
	if err != nil {
		t.Fatalf("parseEnvelope: %v", err)
	}
	if env.from != "noreply@example.com" {
		t.Errorf("from = %q, want default", env.from)
	}
	if string(env.data) != "To: bob@example.com\n\nhello\n" {
		t.Errorf("data = %q, want unchanged", env.data)
	}
}

func TestParseEnvelope_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		from string
	}{
		{"no recipients", "From: a@example.com\r\nSubject: x\r\n\r\nbody", ""},
		{"no sender", "To: b@example.com\r\n\r\nbody", ""},
		{"bad to", "From: a@example.com\r\nTo: not an address\r\n\r\nbody", ""},
		{"not a message", "no headers at all", "a@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseEnvelope([]byte(tt.raw), tt.from); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := parseEnvelope([]byte("From: a@example.com\r\n\r\nbody"), "")
	if !errors.Is(err, errNoRecipients) {
		t.Errorf("err = %v, want %v", err, errNoRecipients)
	}
}
