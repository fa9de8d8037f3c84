package domain

import (
	"net/url"
	"strings"
)

// NormalizeTarget prepares a registration URL for probing. A target without
// a scheme gets plain http, so "example.com" becomes "http://example.com".
func NormalizeTarget(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ValidationError{Field: "url", Reason: "required"}
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", &ValidationError{Field: "url", Reason: "unparseable"}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ValidationError{Field: "url", Reason: "scheme must be http or https"}
	}
	if u.Hostname() == "" {
		return "", &ValidationError{Field: "url", Reason: "missing host"}
	}
	return u.String(), nil
}

// NewSite validates and normalizes registration input. The returned site has
// no ID and no status yet.
func NewSite(name, target string) (Site, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Site{}, &ValidationError{Field: "name", Reason: "required"}
	}
	if len(name) > 255 {
		return Site{}, &ValidationError{Field: "name", Reason: "longer than 255 characters"}
	}
	u, err := NormalizeTarget(target)
	if err != nil {
		return Site{}, err
	}
	if len(u) > 2048 {
		return Site{}, &ValidationError{Field: "url", Reason: "longer than 2048 characters"}
	}
	return Site{Name: name, URL: u}, nil
}
