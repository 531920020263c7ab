package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/intakebot/core/telegram/netutil"
)

const (
	defaultDialTimeout     = 5 * time.Second
	defaultTLSHandshake    = 5 * time.Second
	defaultIdleConnTimeout = 90 * time.Second

	// Headroom on top of the long-poll timeout, which getUpdates holds the
	// response open for.
	responseHeadroom  = 10 * time.Second
	requestHeadroom   = 20 * time.Second
	defaultKeepAlive  = 30 * time.Second
	defaultRedials    = 2
	defaultRedialWait = 500 * time.Millisecond
)

// BuildHTTPClient returns the client used for Bot API calls. pollTimeout is the
// long-poll timeout, zero for webhooks.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: pollTimeout + responseHeadroom,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: pollTimeout + requestHeadroom,
		Transport: &redialTransport{
			base:     transport,
			attempts: defaultRedials + 1,
			wait:     defaultRedialWait,
		},
	}
}

// redialTransport repeats requests that never left the machine, such as dial
// or DNS failures. Anything that may have reached Telegram is returned as is:
// resending a forwardMessage could deliver a file twice.
type redialTransport struct {
	base     http.RoundTripper
	attempts int
	wait     time.Duration
}

func (t *redialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		curr := req
		if attempt > 1 {
			if req.Body != nil && req.GetBody == nil {
				return nil, lastErr
			}
			curr = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				curr.Body = body
			}
		}

		resp, err := t.base.RoundTrip(curr)
		if err == nil || !netutil.NotSent(err) || attempt == t.attempts {
			return resp, err
		}
		lastErr = err

		timer := time.NewTimer(t.wait * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
