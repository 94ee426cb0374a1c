// Package probe checks whether a mail server accepts a recipient by
// running an SMTP session up to RCPT TO and hanging up. No message is
// ever sent.
//
// A probe never panics and never returns an error: every way a session
// can end is described by the returned types.SMTPOutcome.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/optimode/mailprobe/internal/smtpconn"
	"github.com/optimode/mailprobe/types"
)

// Prober is implemented by Client and OAuthClient.
type Prober interface {
	Probe(ctx context.Context, mxHost, rcpt string) types.SMTPOutcome
}

// Timeouts is the per-step time budget. Each step is bounded on its own;
// there is no overall session deadline.
type Timeouts struct {
	Connect time.Duration // TCP connect and greeting. Default: 3s
	EHLO    time.Duration // EHLO and STARTTLS. Default: 2s
	Auth    time.Duration // AUTH exchange. Default: 3s
	Mail    time.Duration // MAIL FROM. Default: 2s
	RCPT    time.Duration // RCPT TO. Default: 3s
	Quit    time.Duration // QUIT, errors ignored. Default: 1s
}

// DefaultTimeouts returns the default per-step budget.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: 3 * time.Second,
		EHLO:    2 * time.Second,
		Auth:    3 * time.Second,
		Mail:    2 * time.Second,
		RCPT:    3 * time.Second,
		Quit:    1 * time.Second,
	}
}

// Config configures a probe client.
type Config struct {
	// HeloName is sent with EHLO. Default: "validator.local"
	HeloName string
	// MailFrom is the envelope sender. Default: "validator@example.com"
	MailFrom string
	// Port is the SMTP port. Default: "25"
	Port string
	// Timeouts overrides individual step budgets; zero fields keep the default.
	Timeouts Timeouts
	// Dial is injectable for testing and proxying. Defaults to net.Dialer.
	Dial smtpconn.DialFunc
	// TLSConfig is used for STARTTLS. ServerName is filled in per host
	// when empty.
	TLSConfig *tls.Config
}

func (c Config) withDefaults() Config {
	if c.HeloName == "" {
		c.HeloName = "validator.local"
	}
	if c.MailFrom == "" {
		c.MailFrom = "validator@example.com"
	}
	if c.Port == "" {
		c.Port = "25"
	}
	def := DefaultTimeouts()
	if c.Timeouts.Connect <= 0 {
		c.Timeouts.Connect = def.Connect
	}
	if c.Timeouts.EHLO <= 0 {
		c.Timeouts.EHLO = def.EHLO
	}
	if c.Timeouts.Auth <= 0 {
		c.Timeouts.Auth = def.Auth
	}
	if c.Timeouts.Mail <= 0 {
		c.Timeouts.Mail = def.Mail
	}
	if c.Timeouts.RCPT <= 0 {
		c.Timeouts.RCPT = def.RCPT
	}
	if c.Timeouts.Quit <= 0 {
		c.Timeouts.Quit = def.Quit
	}
	return c
}

// Client runs plain, unauthenticated probes:
// greeting, EHLO, MAIL FROM, RCPT TO, QUIT.
type Client struct {
	cfg Config
}

// New creates a plain probe client. Zero Config fields take the defaults.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// Probe asks mxHost whether it accepts rcpt. OK is true only when
// RCPT TO is answered with 250.
func (c *Client) Probe(ctx context.Context, mxHost, rcpt string) types.SMTPOutcome {
	return run(ctx, c.cfg, mxHost, func(s *session) types.SMTPOutcome {
		return s.mailRcpt(rcpt)
	})
}

// session is one probe's connection and the state needed to describe
// how it ended.
type session struct {
	conn   *smtpconn.Conn
	cfg    Config
	host   string
	broken bool // a transport error occurred; skip QUIT
}

// run opens the connection, reads the greeting, sends EHLO, then hands
// over to body. The connection is closed on every path, and early when
// ctx is cancelled.
func run(ctx context.Context, cfg Config, host string, body func(*session) types.SMTPOutcome) (out types.SMTPOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = types.SMTPOutcome{
				Code:    types.ReasonUnknown,
				Message: fmt.Sprintf("probe aborted: %v", r),
				MXHost:  host,
			}
		}
	}()

	conn, err := smtpconn.Dial(ctx, cfg.Dial, net.JoinHostPort(host, cfg.Port), cfg.Timeouts.Connect)
	if err != nil {
		return transportFailure(host, "connect", cfg.Timeouts.Connect, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	s := &session{conn: conn, cfg: cfg, host: host}
	out, ok := s.greet()
	if ok {
		out = body(s)
	}
	if !s.broken {
		conn.Quit(cfg.Timeouts.Quit)
	}
	if s.broken && ctx.Err() != nil {
		out = transportFailure(host, "session", 0, ctx.Err())
	}
	return out
}

// greet reads the 220 greeting and sends EHLO.
func (s *session) greet() (types.SMTPOutcome, bool) {
	reply, err := s.conn.ReadReply(s.cfg.Timeouts.Connect)
	if err != nil {
		return s.fail("greeting", s.cfg.Timeouts.Connect, err), false
	}
	if reply.Code != 220 {
		return s.reject(types.ReasonUnexpectedGreeting, reply), false
	}
	return s.hello()
}

func (s *session) hello() (types.SMTPOutcome, bool) {
	reply, err := s.conn.Hello(s.cfg.Timeouts.EHLO, s.cfg.HeloName)
	if err != nil {
		return s.fail("EHLO", s.cfg.Timeouts.EHLO, err), false
	}
	if reply.Code != 250 {
		return s.reject(types.ReasonEHLOFailed, reply), false
	}
	return types.SMTPOutcome{MXHost: s.host}, true
}

// mailRcpt runs MAIL FROM and RCPT TO. A non-250 RCPT reply is an answer,
// not a protocol failure.
func (s *session) mailRcpt(rcpt string) types.SMTPOutcome {
	reply, err := s.conn.Cmd(s.cfg.Timeouts.Mail, "MAIL FROM:<%s>", s.cfg.MailFrom)
	if err != nil {
		return s.fail("MAIL FROM", s.cfg.Timeouts.Mail, err)
	}
	if reply.Code != 250 {
		return s.reject(types.ReasonMailFailed, reply)
	}

	reply, err = s.conn.Cmd(s.cfg.Timeouts.RCPT, "RCPT TO:<%s>", rcpt)
	if err != nil {
		return s.fail("RCPT TO", s.cfg.Timeouts.RCPT, err)
	}
	if reply.Code != 250 {
		return s.reject(types.ReasonRCPTRejected, reply)
	}
	return types.SMTPOutcome{
		OK:       true,
		Message:  reply.String(),
		MXHost:   s.host,
		SMTPCode: reply.Code,
	}
}

func (s *session) reject(code types.ReasonCode, reply smtpconn.Reply) types.SMTPOutcome {
	return types.SMTPOutcome{
		Code:     code,
		Message:  reply.String(),
		MXHost:   s.host,
		SMTPCode: reply.Code,
	}
}

func (s *session) fail(step string, budget time.Duration, err error) types.SMTPOutcome {
	s.broken = true
	return transportFailure(s.host, step, budget, err)
}
