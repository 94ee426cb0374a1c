package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"github.com/optimode/mailprobe/internal/smtpconn"
)

// DialFunc opens the raw connection for a probe.
type DialFunc = smtpconn.DialFunc

// SOCKS5Dialer returns a DialFunc that reaches mail servers through the
// SOCKS5 proxy at addr. user may be empty.
func SOCKS5Dialer(addr, user, password string, timeout time.Duration) (DialFunc, error) {
	var auth *proxy.Auth
	if user != "" {
		auth = &proxy.Auth{User: user, Password: password}
	}

	d, err := proxy.SOCKS5("tcp", addr, auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", addr, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return func(_ context.Context, network, address string) (net.Conn, error) {
			return d.Dial(network, address)
		}, nil
	}
	return cd.DialContext, nil
}
