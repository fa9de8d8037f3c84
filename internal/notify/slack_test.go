package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlack_OK(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got = payload["text"]
		w.WriteHeader(200)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	require.NotNil(t, s)
	require.NoError(t, s.Send(context.Background(), "Title", "Hello"))
	assert.Equal(t, "*Title*\nHello", got)
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	err := NewSlack(ts.URL).Send(context.Background(), "X", "Y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSlack_Disabled(t *testing.T) {
	assert.Nil(t, NewSlack(""))
	var s *Slack
	assert.ErrorIs(t, s.Send(context.Background(), "X", "Y"), ErrDisabled)
}

type recordingNotifier struct {
	titles []string
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func TestMulti_SendsToAllAndCombinesErrors(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	a := &recordingNotifier{err: errA}
	b := &recordingNotifier{}
	c := &recordingNotifier{err: errB}

	err := Multi{a, nil, b, c}.Send(context.Background(), "T", "body")
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	for _, n := range []*recordingNotifier{a, b, c} {
		assert.Equal(t, []string{"T"}, n.titles)
	}

	assert.NoError(t, Multi{b}.Send(context.Background(), "T", "body"))
}
