package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func urlErr(err error) error {
	return &url.Error{Op: "Post", URL: "https://api.telegram.org/bot<token>/sendMessage", Err: err}
}

func TestClassification(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	read := &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}

	cases := []struct {
		name      string
		err       error
		retryable bool
		notSent   bool
	}{
		{"nil", nil, false, false},
		{"dial refused", urlErr(dial), true, true},
		{"bare refused", syscall.ECONNREFUSED, true, true},
		{"dns", urlErr(&net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "api.telegram.org"}}), true, true},
		{"reset while reading", urlErr(read), true, false},
		{"timeout", urlErr(timeoutErr{}), true, false},
		{"unexpected eof", urlErr(io.ErrUnexpectedEOF), true, false},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), true, false},
		{"cancelled", urlErr(context.Canceled), false, false},
		{"api error", errors.New("telegram: Forbidden: bot was blocked by the user (403)"), false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, Retryable(tc.err), "Retryable")
			assert.Equal(t, tc.notSent, NotSent(tc.err), "NotSent")
		})
	}
}
