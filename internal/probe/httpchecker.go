package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

const (
	DefaultTimeout = 10 * time.Second
	drainLimit     = 64 << 10
	userAgent      = "sitewatch/1 (+uptime probe)"
)

type HTTPChecker struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPChecker{
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// Check issues one GET, following redirects. Anything below 400 is a success.
func (h *HTTPChecker) Check(ctx context.Context, target string) Result {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Outcome: domain.OutcomeFailure, Message: err.Error(), Class: ClassTransport}
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{Outcome: domain.OutcomeFailure, Message: err.Error(), Class: classify(err)}
	}
	latency := time.Since(start).Milliseconds()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	resp.Body.Close()

	code := resp.StatusCode
	out := Result{
		Outcome:   domain.OutcomeFailure,
		HTTPCode:  &code,
		LatencyMS: &latency,
		Message:   resp.Status,
	}
	if code < 400 {
		out.Outcome = domain.OutcomeSuccess
	}
	return out
}

func classify(err error) string {
	var dnsErr *net.DNSError
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recErr tls.RecordHeaderError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return ClassDNS
	case errors.As(err, &certErr), errors.As(err, &unknownAuth),
		errors.As(err, &hostErr), errors.As(err, &recErr):
		return ClassTLS
	case errors.Is(err, syscall.ECONNREFUSED):
		return ClassRefused
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return ClassTimeout
	}
	return ClassTransport
}
