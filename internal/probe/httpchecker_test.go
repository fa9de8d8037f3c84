package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	require.True(t, out.Up(), "want success, got %+v", out)
	require.NotNil(t, out.HTTPCode)
	assert.Equal(t, 200, *out.HTTPCode)
	require.NotNil(t, out.LatencyMS)
	assert.GreaterOrEqual(t, *out.LatencyMS, int64(0))
	assert.Empty(t, out.Class)
}

func TestHTTPChecker_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL+"/old")
	require.True(t, out.Up())
	assert.Equal(t, http.StatusNoContent, *out.HTTPCode)
}

func TestHTTPChecker_RedirectCodeBelow400IsUp(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	assert.True(t, out.Up())
	assert.Equal(t, http.StatusNotModified, *out.HTTPCode)
}

func TestHTTPChecker_Status4xx5xxFailWithCodeAndLatency(t *testing.T) {
	for _, code := range []int{400, 404, 500, 503} {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", code)
		}))

		out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
		s.Close()

		assert.Equal(t, domain.OutcomeFailure, out.Outcome)
		require.NotNil(t, out.HTTPCode, "code %d", code)
		assert.Equal(t, code, *out.HTTPCode)
		assert.NotNil(t, out.LatencyMS, "code %d", code)
	}
}

func TestHTTPChecker_ConnectionRefused(t *testing.T) {
	// grab a free port, then close it so nothing listens there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), "http://"+addr)
	assert.Equal(t, domain.OutcomeFailure, out.Outcome)
	assert.Nil(t, out.HTTPCode)
	assert.Nil(t, out.LatencyMS)
	assert.Equal(t, ClassRefused, out.Class)
	assert.NotEmpty(t, out.Message)
}

func TestHTTPChecker_Timeout(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	out := NewHTTPChecker(50*time.Millisecond).Check(context.Background(), s.URL)
	assert.Equal(t, domain.OutcomeFailure, out.Outcome)
	assert.Nil(t, out.HTTPCode)
	assert.Nil(t, out.LatencyMS)
	assert.Equal(t, ClassTimeout, out.Class)
}

func TestHTTPChecker_TLSFailure(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer s.Close()

	// default client does not trust the test certificate
	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	assert.Equal(t, domain.OutcomeFailure, out.Outcome)
	assert.Nil(t, out.HTTPCode)
	assert.Equal(t, ClassTLS, out.Class)
}

func TestHTTPChecker_BadURL(t *testing.T) {
	out := NewHTTPChecker(time.Second).Check(context.Background(), "http://bad host/")
	assert.Equal(t, domain.OutcomeFailure, out.Outcome)
	assert.Nil(t, out.HTTPCode)
}

func TestNewHTTPChecker_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewHTTPChecker(0).Timeout)
}
