package probe

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"github.com/optimode/mailprobe/internal/smtpconn"
	"github.com/optimode/mailprobe/types"
)

// Mechanism is a SASL OAuth mechanism.
type Mechanism string

const (
	XOAUTH2     Mechanism = "XOAUTH2"
	OAuthBearer Mechanism = "OAUTHBEARER"
)

// ParseMechanism accepts the mechanism names case-insensitively.
func ParseMechanism(s string) (Mechanism, error) {
	switch Mechanism(strings.ToUpper(strings.TrimSpace(s))) {
	case XOAUTH2, "":
		return XOAUTH2, nil
	case OAuthBearer:
		return OAuthBearer, nil
	}
	return "", fmt.Errorf("probe: unknown OAuth mechanism %q", s)
}

// OAuthClient probes servers that refuse unauthenticated sessions. After
// EHLO it upgrades to TLS when STARTTLS is offered, authenticates with
// an OAuth access token, then continues with MAIL FROM and RCPT TO.
//
// When no token is available or the server does not offer the
// mechanism, the outcome is SKIPPED and MAIL FROM is never sent.
type OAuthClient struct {
	cfg    Config
	user   string
	tokens oauth2.TokenSource
	mech   Mechanism
}

// NewOAuth creates an OAuth probe client. user is the mailbox the token
// was issued for. tokens may be nil, in which case every probe is
// SKIPPED.
func NewOAuth(cfg Config, user string, tokens oauth2.TokenSource, mech Mechanism) *OAuthClient {
	if mech == "" {
		mech = XOAUTH2
	}
	return &OAuthClient{
		cfg:    cfg.withDefaults(),
		user:   user,
		tokens: tokens,
		mech:   mech,
	}
}

// Probe authenticates against mxHost and asks whether it accepts rcpt.
// The token is fetched before dialing, so a missing token never opens a
// connection.
func (c *OAuthClient) Probe(ctx context.Context, mxHost, rcpt string) types.SMTPOutcome {
	if c.tokens == nil {
		return skipped(mxHost, "no OAuth token source configured")
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return skipped(mxHost, fmt.Sprintf("OAuth token unavailable: %v", err))
	}
	if tok == nil || tok.AccessToken == "" {
		return skipped(mxHost, "OAuth token unavailable")
	}

	return run(ctx, c.cfg, mxHost, func(s *session) types.SMTPOutcome {
		if supportsStartTLS(s.conn) {
			if out, ok := s.startTLS(); !ok {
				return out
			}
		}
		if !supportsMechanism(s.conn, c.mech) {
			return skipped(s.host, fmt.Sprintf("server does not offer AUTH %s", c.mech))
		}
		if out, ok := s.auth(c.mech, c.user, tok.AccessToken); !ok {
			return out
		}
		return s.mailRcpt(rcpt)
	})
}

func supportsStartTLS(c *smtpconn.Conn) bool { return c.HasExtension("STARTTLS") }

// supportsMechanism reports whether an EHLO line offers AUTH with mech,
// e.g. "AUTH LOGIN PLAIN XOAUTH2".
func supportsMechanism(c *smtpconn.Conn, mech Mechanism) bool {
	return c.HasExtension("AUTH", string(mech))
}

// startTLS upgrades the session and re-issues EHLO.
func (s *session) startTLS() (types.SMTPOutcome, bool) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.cfg.TLSConfig != nil {
		cfg = s.cfg.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = s.host
	}

	reply, err := s.conn.StartTLS(s.cfg.Timeouts.EHLO, cfg)
	if err != nil {
		return s.fail("STARTTLS", s.cfg.Timeouts.EHLO, err), false
	}
	if reply.Code != 220 {
		return s.reject(types.ReasonProtocol, reply), false
	}
	return s.hello()
}

// auth runs the SASL exchange. 235 is success; a 334 challenge gets one
// empty line, after which only 235 is success.
func (s *session) auth(mech Mechanism, user, token string) (types.SMTPOutcome, bool) {
	reply, err := s.conn.Cmd(s.cfg.Timeouts.Auth, "AUTH %s %s", mech, initialResponse(mech, user, token))
	if err != nil {
		return s.fail("AUTH", s.cfg.Timeouts.Auth, err), false
	}
	if reply.Code == 334 {
		reply, err = s.conn.Cmd(s.cfg.Timeouts.Auth, "")
		if err != nil {
			return s.fail("AUTH", s.cfg.Timeouts.Auth, err), false
		}
	}
	if reply.Code != 235 {
		return s.reject(types.ReasonAuth, reply), false
	}
	return types.SMTPOutcome{MXHost: s.host}, true
}

func skipped(host, reason string) types.SMTPOutcome {
	return types.SMTPOutcome{
		Skipped: true,
		Code:    types.ReasonSkipped,
		Message: reason,
		MXHost:  host,
	}
}

// initialResponse builds the base64 SASL initial response.
func initialResponse(mech Mechanism, user, token string) string {
	var raw string
	switch mech {
	case OAuthBearer:
		raw = "n,a=" + user + ",\x01auth=Bearer " + token + "\x01\x01"
	default:
		raw = "user=" + user + "\x01auth=Bearer " + token + "\x01\x01"
	}
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
