package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
)

func TestPreflight(t *testing.T) {
	var out, errOut bytes.Buffer
	ok := preflight(preflightInput{Driver: "memory"}, &out, &errOut)
	assert.False(t, ok)
	assert.Contains(t, errOut.String(), "ADMIN_API_KEYS is empty")
	assert.Contains(t, errOut.String(), "in memory")

	out.Reset()
	errOut.Reset()
	ok = preflight(preflightInput{
		Addr:           ":8080",
		Driver:         "postgres",
		DatabaseURL:    "postgres://x",
		PublicKeys:     []string{"public-key-0123456789"},
		AdminKeys:      []string{"short"},
		AllowedOrigins: []string{"https://dash.example"},
	}, &out, &errOut)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "preflight passed")
	assert.Contains(t, errOut.String(), "shorter than 16")
}

func TestAddCmd_PostsSite(t *testing.T) {
	var got map[string]string
	var key string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sites", r.URL.Path)
		key = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":3,"url":"http://example.com"}`))
	}))
	defer api.Close()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("example.com\n"))
	root.SetArgs([]string{"add", "--api", api.URL, "--key", "adm"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Equal(t, "adm", key)
	assert.Equal(t, "example.com", got["url"])
	assert.Equal(t, "example.com", got["name"])
	assert.Contains(t, out.String(), "Added site 3: http://example.com")
}

func TestAddCmd_ReportsAPIError(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid url: scheme must be http or https","field":"url"}`))
	}))
	defer api.Close()

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"add", "--api", api.URL, "--name", "x", "--url", "ftp://x"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme must be http or https")
}

type stubChecker struct{ res probe.Result }

func (s stubChecker) Check(context.Context, string) probe.Result { return s.res }

func TestRunCheck(t *testing.T) {
	code, lat := 200, int64(9)
	cmd := newCheckCmd(&rootOptions{})
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runCheck(cmd, stubChecker{probe.Result{Outcome: domain.OutcomeSuccess, HTTPCode: &code, LatencyMS: &lat, Message: "200 OK"}}, "http://a.example")
	require.NoError(t, err)
	assert.Equal(t, "UP http://a.example http=200 latency=9 ms 200 OK\n", out.String())

	out.Reset()
	err = runCheck(cmd, stubChecker{probe.Result{Outcome: domain.OutcomeFailure, Message: "connection refused", Class: probe.ClassRefused}}, "http://b.example")
	assert.ErrorIs(t, err, errSiteDown)
	assert.Contains(t, out.String(), "DOWN http://b.example http=n/a latency=n/a")
}

func TestOpenStore(t *testing.T) {
	s, err := openStore(context.Background(), config.Config{DBDriver: config.DriverMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	_, err = openStore(context.Background(), config.Config{DBDriver: "oracle"}, nil)
	assert.Error(t, err)
}
