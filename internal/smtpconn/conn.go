// Package smtpconn implements the client side of an SMTP session over a
// single connection: reply framing, commands with per-step deadlines,
// EHLO capability tracking and the STARTTLS upgrade.
package smtpconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedReply is returned when a reply line does not start with a
// three-digit code.
var ErrMalformedReply = errors.New("smtpconn: malformed reply")

// maxReplyLines caps multi-line replies so a hostile server cannot make
// the reader loop forever.
const maxReplyLines = 512

// DialFunc opens the raw connection. It is injectable for testing and
// for proxied egress.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Reply is a complete SMTP reply.
type Reply struct {
	Code  int
	Lines []string // text of each line, without the code
}

// Message joins the reply text lines.
func (r Reply) Message() string {
	return strings.Join(r.Lines, " | ")
}

// String renders the reply as code plus message.
func (r Reply) String() string {
	msg := r.Message()
	if msg == "" {
		return strconv.Itoa(r.Code)
	}
	return fmt.Sprintf("%d %s", r.Code, msg)
}

// Conn is one SMTP session. It is not safe for concurrent use.
type Conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	ext     []string // EHLO reply lines
}

// Dial connects to address within timeout.
func Dial(ctx context.Context, dial DialFunc, address string, timeout time.Duration) (*Conn, error) {
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	netConn, err := dial(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	return New(netConn), nil
}

// New wraps an established connection.
func New(netConn net.Conn) *Conn {
	return &Conn{
		netConn: netConn,
		reader:  bufio.NewReader(netConn),
		writer:  bufio.NewWriter(netConn),
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.netConn.Close()
}

// ReadReply reads one reply, waiting at most timeout.
func (c *Conn) ReadReply(timeout time.Duration) (Reply, error) {
	if err := c.netConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Reply{}, fmt.Errorf("set deadline: %w", err)
	}
	return readReply(c.reader)
}

// Cmd sends one command line and reads its reply. The timeout covers
// both the write and the read.
func (c *Conn) Cmd(timeout time.Duration, format string, args ...any) (Reply, error) {
	if err := c.netConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Reply{}, fmt.Errorf("set deadline: %w", err)
	}
	if _, err := fmt.Fprintf(c.writer, format+"\r\n", args...); err != nil {
		return Reply{}, err
	}
	if err := c.writer.Flush(); err != nil {
		return Reply{}, err
	}
	return readReply(c.reader)
}

// Hello sends EHLO and remembers the advertised extensions when the
// server accepts it.
func (c *Conn) Hello(timeout time.Duration, name string) (Reply, error) {
	reply, err := c.Cmd(timeout, "EHLO %s", name)
	if err != nil {
		return reply, err
	}
	if reply.Code == 250 {
		c.ext = reply.Lines
	}
	return reply, nil
}

// HasExtension reports whether any EHLO line contains every keyword,
// compared case-insensitively.
func (c *Conn) HasExtension(keywords ...string) bool {
	for _, line := range c.ext {
		upper := strings.ToUpper(line)
		all := true
		for _, kw := range keywords {
			if !strings.Contains(upper, strings.ToUpper(kw)) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// StartTLS issues STARTTLS and upgrades the connection. The caller must
// send EHLO again afterwards; the old extension list is discarded.
func (c *Conn) StartTLS(timeout time.Duration, cfg *tls.Config) (Reply, error) {
	reply, err := c.Cmd(timeout, "STARTTLS")
	if err != nil {
		return reply, err
	}
	if reply.Code != 220 {
		return reply, nil
	}

	tlsConn := tls.Client(c.netConn, cfg)
	if err := tlsConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return reply, fmt.Errorf("set deadline: %w", err)
	}
	if err := tlsConn.Handshake(); err != nil {
		return reply, fmt.Errorf("tls handshake: %w", err)
	}
	c.netConn = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.writer = bufio.NewWriter(tlsConn)
	c.ext = nil
	return reply, nil
}

// Quit sends QUIT (best-effort, ignores errors and the reply).
func (c *Conn) Quit(timeout time.Duration) {
	_, _ = c.Cmd(timeout, "QUIT")
}

// readReply reads a (possibly multi-line) SMTP reply. A line whose
// fourth character is '-' is followed by more lines; the code is taken
// from the final line.
func readReply(r *bufio.Reader) (Reply, error) {
	var reply Reply
	for n := 0; ; n++ {
		if n >= maxReplyLines {
			return Reply{}, fmt.Errorf("%w: more than %d lines", ErrMalformedReply, maxReplyLines)
		}
		line, err := r.ReadString('\n')
		if err != nil {
			return Reply{}, fmt.Errorf("read SMTP reply: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		code, ok := parseCode(line)
		if !ok {
			return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
		}

		text := ""
		if len(line) > 4 {
			text = line[4:]
		}
		reply.Lines = append(reply.Lines, text)

		if len(line) < 4 || line[3] != '-' {
			reply.Code = code
			return reply, nil
		}
	}
}

func parseCode(line string) (int, bool) {
	if len(line) < 3 {
		return 0, false
	}
	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return 0, false
		}
	}
	code, _ := strconv.Atoi(line[:3])
	return code, true
}
