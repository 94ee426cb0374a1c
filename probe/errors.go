package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/optimode/mailprobe/internal/smtpconn"
	"github.com/optimode/mailprobe/types"
)

// connErrnos are the transport conditions reported as CONNECTION_ERROR,
// keyed by the name carried in the outcome message.
var connErrnos = []struct {
	name  string
	errno syscall.Errno
}{
	{"ECONNRESET", syscall.ECONNRESET},
	{"ECONNREFUSED", syscall.ECONNREFUSED},
	{"ETIMEDOUT", syscall.ETIMEDOUT},
	{"EPIPE", syscall.EPIPE},
}

// Classify maps a transport error to a reason code and, for connection
// errors, the name of the underlying condition.
func Classify(err error) (types.ReasonCode, string) {
	for _, c := range connErrnos {
		if errors.Is(err, c.errno) {
			return types.ReasonConnection, c.name
		}
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return types.ReasonTimeout, ""
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.ReasonTimeout, ""
	}

	// The peer hung up mid-reply: a reset as far as the probe can tell.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return types.ReasonConnection, "ECONNRESET"
	}

	if errors.Is(err, smtpconn.ErrMalformedReply) {
		return types.ReasonProtocol, ""
	}
	return types.ReasonUnknown, ""
}

func transportFailure(host, step string, budget time.Duration, err error) types.SMTPOutcome {
	code, cause := Classify(err)

	var msg string
	switch code {
	case types.ReasonConnection:
		msg = fmt.Sprintf("%s: %s: %v", cause, step, err)
	case types.ReasonTimeout:
		if budget > 0 {
			msg = fmt.Sprintf("%s timed out after %s", step, budget)
		} else {
			msg = fmt.Sprintf("%s timed out", step)
		}
	default:
		msg = fmt.Sprintf("%s: %v", step, err)
	}

	return types.SMTPOutcome{
		Code:    code,
		Message: msg,
		MXHost:  host,
	}
}
