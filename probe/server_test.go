package probe_test

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optimode/mailprobe/probe"
)

const (
	// hangUp as a response closes the connection instead of answering.
	hangUp = "<hangup>"
	// silent as a response reads the command and never answers.
	silent = "<silent>"
	// emptyLine is the response key for an empty command line.
	emptyLine = "<empty>"
)

// fakeServer simulates an SMTP server on one end of a net.Pipe.
// Responses are matched by the longest command prefix.
type fakeServer struct {
	banner       string
	responses    map[string]string
	tlsConfig    *tls.Config       // when set, STARTTLS upgrades the connection
	tlsResponses map[string]string // responses after the upgrade
	cmds         chan string
	closed       atomic.Int64 // client-side Close calls
}

func newFakeServer(banner string, responses map[string]string) *fakeServer {
	return &fakeServer{
		banner:    banner,
		responses: responses,
		cmds:      make(chan string, 64),
	}
}

func (f *fakeServer) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if f.banner != "" {
		if _, err := fmt.Fprintf(conn, "%s\r\n", f.banner); err != nil {
			return
		}
	}

	responses := f.responses
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		select {
		case f.cmds <- cmd:
		default:
		}

		if strings.HasPrefix(cmd, "QUIT") {
			_, _ = fmt.Fprintf(conn, "221 Bye\r\n")
			return
		}
		if cmd == "STARTTLS" && f.tlsConfig != nil {
			_, _ = fmt.Fprintf(conn, "220 Ready to start TLS\r\n")
			tc := tls.Server(conn, f.tlsConfig)
			if err := tc.Handshake(); err != nil {
				return
			}
			conn = tc
			r = bufio.NewReader(tc)
			responses = f.tlsResponses
			continue
		}

		resp := match(responses, cmd)
		switch resp {
		case hangUp:
			return
		case silent:
			continue
		case "":
			resp = "500 unrecognized command"
		}
		_, _ = fmt.Fprintf(conn, "%s\r\n", resp)
	}
}

func match(responses map[string]string, cmd string) string {
	if cmd == "" {
		return responses[emptyLine]
	}
	best, bestLen := "", -1
	for prefix, resp := range responses {
		if prefix == emptyLine {
			continue
		}
		if strings.HasPrefix(cmd, prefix) && len(prefix) > bestLen {
			best, bestLen = resp, len(prefix)
		}
	}
	return best
}

// dial returns a DialFunc that connects to this server over net.Pipe.
func (f *fakeServer) dial() probe.DialFunc {
	return func(_ context.Context, _, _ string) (net.Conn, error) {
		client, server := net.Pipe()
		go f.serve(server)
		return &closeCounter{Conn: client, n: &f.closed}, nil
	}
}

// commands drains the commands received so far.
func (f *fakeServer) commands() []string {
	var out []string
	for {
		select {
		case c := <-f.cmds:
			out = append(out, c)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

// closeCounter counts Close calls on the client end.
type closeCounter struct {
	net.Conn
	n *atomic.Int64
}

func (c *closeCounter) Close() error {
	c.n.Add(1)
	return c.Conn.Close()
}

// testTLSConfigs returns a server config with a self-signed certificate
// for host and a client config that trusts it.
func testTLSConfigs(t *testing.T, host string) (server, client *tls.Config) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: host},
		DNSNames:              []string{host},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	server = &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}}}
	client = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return server, client
}
