package probe

import (
	"context"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Result is the unified outcome of a single probe.
//
// HTTPCode and LatencyMS are set whenever a response arrived, including
// >= 400 failures, and are nil for transport errors.
type Result struct {
	Outcome   domain.Outcome
	HTTPCode  *int
	LatencyMS *int64
	Message   string // status line or transport error text
	Class     string // failure class for transport errors, see Class* constants
}

func (r Result) Up() bool { return r.Outcome == domain.OutcomeSuccess }

const (
	ClassTimeout   = "timeout"
	ClassDNS       = "dns"
	ClassTLS       = "tls"
	ClassRefused   = "refused"
	ClassTransport = "transport"
)

// Checker performs a single reachability check for a target URL. It never
// touches storage and never retries.
type Checker interface {
	Check(ctx context.Context, target string) Result
}
