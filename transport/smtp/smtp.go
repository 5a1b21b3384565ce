// Package smtp delivers messages to an SMTP relay using net/smtp.
//
// The message payload is a complete RFC 5322 document. The envelope sender
// comes from its From header (or the configured default) and the envelope
// recipients from To, Cc and Bcc. Replies in the 5xx range are reported as
// permanent failures, everything else as transient.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/transport"
)

// Well-known submission ports.
const (
	DefaultPort         = 25
	DefaultSSLPort      = 465
	DefaultSTARTTLSPort = 587
	DefaultDialTimeout  = 30 * time.Second
)

// Compile-time check.
var _ transport.Transport = (*Transport)(nil)

// Transport sends each message over a fresh SMTP session.
type Transport struct {
	cfg         postmaster.MailConfig
	tlsConfig   *tls.Config
	dialTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithTLSConfig overrides the TLS settings used for SMTPS and STARTTLS.
func WithTLSConfig(c *tls.Config) Option {
	return func(t *Transport) { t.tlsConfig = c }
}

// WithDialTimeout bounds connection setup when the context carries no
// deadline.
func WithDialTimeout(d time.Duration) Option {
	return func(t *Transport) { t.dialTimeout = d }
}

// New creates an SMTP transport from cfg.
func New(cfg postmaster.MailConfig, opts ...Option) *Transport {
	t := &Transport{
		cfg:         cfg,
		dialTimeout: DefaultDialTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.tlsConfig == nil {
		t.tlsConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return t
}

func (t *Transport) port() int {
	switch {
	case t.cfg.Port > 0:
		return t.cfg.Port
	case t.cfg.StartTLSEnable:
		return DefaultSTARTTLSPort
	default:
		return DefaultPort
	}
}

// Send delivers m in one SMTP session.
func (t *Transport) Send(ctx context.Context, m *message.Message) error {
	env, err := parseEnvelope(m.Payload, t.cfg.From)
	if err != nil {
		return transport.Permanent(fmt.Errorf("postmaster/smtp: %s: %w", m.ID, err))
	}

	client, closeFn, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("postmaster/smtp: %w", err)
	}
	defer closeFn()

	if err := t.authenticate(client); err != nil {
		return classify(err)
	}
	if err := client.Mail(env.from); err != nil {
		return classify(fmt.Errorf("MAIL FROM: %w", err))
	}
	for _, rcpt := range env.to {
		if err := client.Rcpt(rcpt); err != nil {
			return classify(fmt.Errorf("RCPT TO %s: %w", rcpt, err))
		}
	}
	w, err := client.Data()
	if err != nil {
		return classify(fmt.Errorf("DATA: %w", err))
	}
	if _, err := w.Write(env.data); err != nil {
		return classify(fmt.Errorf("write body: %w", err))
	}
	if err := w.Close(); err != nil {
		return classify(fmt.Errorf("end of data: %w", err))
	}

	t.logger.Debug("smtp accepted message",
		slog.String("message_id", m.ID.String()),
		slog.Int("recipients", len(env.to)),
	)
	return nil
}

// dial opens the connection, upgrading to TLS when configured. The
// returned func ends the session.
func (t *Transport) dial(ctx context.Context) (*smtp.Client, func(), error) {
	if t.cfg.Host == "" {
		return nil, nil, errors.New("smtp host cannot be empty")
	}
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.port()))

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok && t.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.dialTimeout)
		defer cancel()
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // best effort
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	if t.port() == DefaultSSLPort {
		tlsConn := tls.Client(conn, t.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			stop()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("tls handshake: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("smtp greeting: %w", err)
	}
	closeFn := func() {
		stop()
		_ = client.Quit()
		_ = conn.Close()
	}

	if t.cfg.StartTLSEnable || t.cfg.StartTLSRequired {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.tlsConfig); err != nil {
				closeFn()
				return nil, nil, fmt.Errorf("starttls: %w", err)
			}
		} else if t.cfg.StartTLSRequired {
			closeFn()
			return nil, nil, errors.New("server does not offer STARTTLS")
		}
	}
	return client, closeFn, nil
}

func (t *Transport) authenticate(client *smtp.Client) error {
	if !t.cfg.Auth || t.cfg.Username == "" {
		return nil
	}
	if ok, _ := client.Extension("AUTH"); !ok {
		return errors.New("server does not support AUTH")
	}
	auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// classify marks 5xx replies permanent.
func classify(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return transport.Permanent(fmt.Errorf("postmaster/smtp: %w", err))
	}
	return fmt.Errorf("postmaster/smtp: %w", err)
}
