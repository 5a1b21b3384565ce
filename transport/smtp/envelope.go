package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var errNoRecipients = errors.New("no recipients in To, Cc or Bcc")

// envelope is the SMTP envelope derived from an RFC 5322 payload.
type envelope struct {
	from string
	to   []string
	data []byte
}

// parseEnvelope reads the sender from the From header (falling back to
// defaultFrom) and the recipients from To, Cc and Bcc. Bcc is removed from
// the data that goes on the wire.
func parseEnvelope(raw []byte, defaultFrom string) (*envelope, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	env := &envelope{from: defaultFrom}
	if v := msg.Header.Get("From"); v != "" {
		addr, addrErr := mail.ParseAddress(v)
		if addrErr != nil {
			return nil, fmt.Errorf("parse From: %w", addrErr)
		}
		env.from = addr.Address
	}
	if env.from == "" {
		return nil, errors.New("no sender: set a From header or mail.from")
	}

	seen := make(map[string]struct{})
	for _, field := range []string{"To", "Cc", "Bcc"} {
		if msg.Header.Get(field) == "" {
			continue
		}
		list, listErr := msg.Header.AddressList(field)
		if listErr != nil {
			return nil, fmt.Errorf("parse %s: %w", field, listErr)
		}
		for _, a := range list {
			key := strings.ToLower(a.Address)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			env.to = append(env.to, a.Address)
		}
	}
	if len(env.to) == 0 {
		return nil, errNoRecipients
	}

	env.data = stripHeader(raw, "Bcc")
	return env, nil
}

// stripHeader drops every occurrence of the named header field, including
// folded continuation lines, from the header section of raw.
func stripHeader(raw []byte, name string) []byte {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	sep := 4
	if end < 0 {
		end = bytes.Index(raw, []byte("\n\n"))
		sep = 2
	}
	if end < 0 {
		end, sep = len(raw), 0
	}

	prefix := strings.ToLower(name) + ":"
	var out bytes.Buffer
	out.Grow(len(raw))
	dropping := false
	for _, line := range bytes.SplitAfter(raw[:end], []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if !dropping {
				out.Write(line)
			}
			continue
		}
		dropping = strings.HasPrefix(strings.ToLower(string(line)), prefix)
		if !dropping {
			out.Write(line)
		}
	}
	if sep > 0 {
		// Normalize the tail so exactly one blank line precedes the body.
		b := bytes.TrimRight(out.Bytes(), "\r\n")
		out.Truncate(len(b))
		if sep == 4 {
			out.WriteString("\r\n\r\n")
		} else {
			out.WriteString("\n\n")
		}
		out.Write(raw[end+sep:])
	}
	return out.Bytes()
}
