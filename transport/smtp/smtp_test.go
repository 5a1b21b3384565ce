package smtp_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/transport"
	pmsmtp "github.com/xraph/postmaster/transport/smtp"
)

// fakeServer speaks just enough SMTP for one session at a time.
type fakeServer struct {
	ln        net.Listener
	rcptReply string

	mu    sync.Mutex
	from  string
	rcpts []string
	data  string
}

func newFakeServer(t *testing.T, rcptReply string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, rcptReply: rcptReply}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	tc := textproto.NewConn(conn)
	_ = tc.PrintfLine("220 fake ESMTP")
	for {
		line, err := tc.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			_ = tc.PrintfLine("250-fake")
			_ = tc.PrintfLine("250 8BITMIME")
		case "HELO", "RSET", "NOOP":
			_ = tc.PrintfLine("250 ok")
		case "MAIL":
			s.mu.Lock()
			s.from = between(line, "<", ">")
			s.mu.Unlock()
			_ = tc.PrintfLine("250 ok")
		case "RCPT":
			if !strings.HasPrefix(s.rcptReply, "2") {
				_ = tc.PrintfLine("%s", s.rcptReply)
				continue
			}
			s.mu.Lock()
			s.rcpts = append(s.rcpts, between(line, "<", ">"))
			s.mu.Unlock()
			_ = tc.PrintfLine("%s", s.rcptReply)
		case "DATA":
			_ = tc.PrintfLine("354 go ahead")
			b, err := tc.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = string(b)
			s.mu.Unlock()
			_ = tc.PrintfLine("250 queued")
		case "QUIT":
			_ = tc.PrintfLine("221 bye")
			return
		default:
			_ = tc.PrintfLine("502 not implemented")
		}
	}
}

func between(s, open, closing string) string {
	i := strings.Index(s, open)
	j := strings.LastIndex(s, closing)
	if i < 0 || j <= i {
		return ""
	}
	return s[i+1 : j]
}

func newTransport(port int) *pmsmtp.Transport {
	return pmsmtp.New(postmaster.MailConfig{
		Host: "127.0.0.1",
		Port: port,
		From: "noreply@example.com",
	}, pmsmtp.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

const payload = "From: alice@example.com\r\n" +
	"To: bob@example.com\r\n" +
	"Bcc: carol@example.com\r\n" +
	"Subject: report\r\n" +
	"\r\n" +
	"see attached\r\n"

func TestSend_Delivers(t *testing.T) {
	srv := newFakeServer(t, "250 ok")
	tr := newTransport(srv.port())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Send(ctx, message.New([]byte(payload), 1)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.from != "alice@example.com" {
		t.Errorf("MAIL FROM = %q, want %q", srv.from, "alice@example.com")
	}
	if strings.Join(srv.rcpts, ",") != "bob@example.com,carol@example.com" {
		t.Errorf("RCPT TO = %v", srv.rcpts)
	}
	if strings.Contains(srv.data, "carol") {
		t.Errorf("Bcc leaked into DATA: %q", srv.data)
	}
	if !strings.Contains(srv.data, "see attached") {
		t.Errorf("DATA = %q, missing body", srv.data)
	}
}

func TestSend_PermanentReply(t *testing.T) {
	srv := newFakeServer(t, "550 no such user")
	err := newTransport(srv.port()).Send(context.Background(), message.New([]byte(payload), 1))
	if err == nil {
		t.Fatal("expected error")
	}
	if !transport.IsPermanent(err) {
		t.Errorf("5xx reply should be permanent: %v", err)
	}
}

func TestSend_TransientReply(t *testing.T) {
	srv := newFakeServer(t, "451 greylisted")
	err := newTransport(srv.port()).Send(context.Background(), message.New([]byte(payload), 1))
	if err == nil {
		t.Fatal("expected error")
	}
	if transport.IsPermanent(err) {
		t.Errorf("4xx reply should be transient: %v", err)
	}
}

func TestSend_MalformedPayloadIsPermanent(t *testing.T) {
	err := newTransport(1).Send(context.Background(), message.New([]byte("Subject: x\r\n\r\nno rcpt"), 1))
	if !transport.IsPermanent(err) {
		t.Errorf("err = %v, want permanent", err)
	}
}

func TestSend_ConnectionRefusedIsTransient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	err = newTransport(port).Send(context.Background(), message.New([]byte(payload), 1))
	if err == nil {
		t.Fatal("expected dial error")
	}
	if transport.IsPermanent(err) {
		t.Errorf("dial failure should be transient: %v", err)
	}
	if !strings.Contains(err.Error(), strconv.Itoa(port)) {
		t.Errorf("err = %v, want address in message", err)
	}
}

func TestSend_StartTLSRequiredWithoutSupport(t *testing.T) {
	srv := newFakeServer(t, "250 ok")
	tr := pmsmtp.New(postmaster.MailConfig{
		Host:             "127.0.0.1",
		Port:             srv.port(),
		StartTLSRequired: true,
	})
	err := tr.Send(context.Background(), message.New([]byte(payload), 1))
	if err == nil || !strings.Contains(err.Error(), "STARTTLS") {
		t.Errorf("err = %v, want STARTTLS error", err)
	}
}
