package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
)

func newAPI(t *testing.T, opt Options) (*httptest.Server, *reminder.Engine) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC))
	jobs := scheduler.New(mock, logx.Nop())
	t.Cleanup(func() { _ = jobs.Stop(context.Background()) })
	eng := reminder.New(reminder.Config{}, wallclock.New(mock, time.UTC), jobs, storage.NewMemory(), logx.Nop())

	opt.Engine = eng
	srv := httptest.NewServer(NewRouter(opt))
	t.Cleanup(srv.Close)
	return srv, eng
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestHealthAndStatus(t *testing.T) {
	t.Parallel()
	srv, _ := newAPI(t, Options{Status: func() any { return map[string]int{"reminders": 3} }})

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, body)
	require.NotEmpty(t, resp.Header.Get("Content-Type"))

	resp, body = do(t, http.MethodGet, srv.URL+"/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"reminders":3}`, body)
}

func TestReminderLifecycle(t *testing.T) {
	t.Parallel()
	srv, eng := newAPI(t, Options{})
	base := srv.URL + "/reminders/42"

	resp, body := do(t, http.MethodPost, base, `{"name":"Vitamin D","time":"08:30"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	var created reminder.Reminder
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	require.Equal(t, "Vitamin D", created.Name)
	require.True(t, created.Next.Equal(time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)))

	resp, body = do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []reminder.Reminder
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 1)

	resp, body = do(t, http.MethodPost, base+"/Vitamin%20D/snooze", `{"minutes":30}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	require.Contains(t, body, "2024-03-01T07:30:00Z")

	resp, _ = do(t, http.MethodPost, base+"/Vitamin%20D/snooze", `{"delay":"1h"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "hours are not a minute delay")

	resp, body = do(t, http.MethodPost, base+"/Vitamin%20D/ack", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Equal(t, 2, eng.List(42)[0].Next.Day())

	resp, _ = do(t, http.MethodDelete, base+"/Vitamin%20D", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, eng.List(42))
}

func TestNameSegmentDecodedOnce(t *testing.T) {
	t.Parallel()
	srv, eng := newAPI(t, Options{})
	ctx := context.Background()
	at := wallclock.MustParse("09:00")
	for _, name := range []string{"a%41", "aA", "a/b"} {
		_, err := eng.Create(ctx, 42, name, at)
		require.NoError(t, err)
	}

	resp, body := do(t, http.MethodDelete, srv.URL+"/reminders/42/a%2541", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode, body)
	_, ok := eng.Get(reminder.Key{Owner: 42, Name: "a%41"})
	require.False(t, ok)
	_, ok = eng.Get(reminder.Key{Owner: 42, Name: "aA"})
	require.True(t, ok, "literal percent must not be decoded twice")

	resp, body = do(t, http.MethodDelete, srv.URL+"/reminders/42/a%2Fb", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode, body)
	_, ok = eng.Get(reminder.Key{Owner: 42, Name: "a/b"})
	require.False(t, ok)
}

func TestErrorStatusCodes(t *testing.T) {
	t.Parallel()
	srv, _ := newAPI(t, Options{})

	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"bad owner", http.MethodGet, "/reminders/abc", "", http.StatusBadRequest},
		{"bad time", http.MethodPost, "/reminders/1", `{"name":"x","time":"8.30"}`, http.StatusBadRequest},
		{"empty name", http.MethodPost, "/reminders/1", `{"name":"  ","time":"08:30"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/reminders/1", `{"name":"x","time":"08:30","every":"1h"}`, http.StatusBadRequest},
		{"ack missing", http.MethodPost, "/reminders/1/x/ack", "", http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/reminders/1/x", "", http.StatusNotFound},
		{"snooze zero", http.MethodPost, "/reminders/1/x/snooze", `{"minutes":0}`, http.StatusBadRequest},
		{"snooze missing", http.MethodPost, "/reminders/1/x/snooze", `{"minutes":5}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		resp, body := do(t, tc.method, srv.URL+tc.path, tc.body)
		require.Equal(t, tc.want, resp.StatusCode, "%s: %s", tc.name, body)
		require.Contains(t, body, `"error"`, tc.name)
	}
}

func TestOptionalMounts(t *testing.T) {
	t.Parallel()
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	srv, _ := newAPI(t, Options{})
	resp, _ := do(t, http.MethodGet, srv.URL+"/debug/pprof/", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/mcp", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv, _ = newAPI(t, Options{Pprof: true, MCP: mcp})
	resp, _ = do(t, http.MethodGet, srv.URL+"/debug/pprof/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/mcp", "")
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()
	s := NewServer(logx.Nop())
	require.NoError(t, s.Start("127.0.0.1:0", NewRouter(Options{})))
	addr := s.Addr()
	require.NotEmpty(t, addr)
	require.Error(t, s.Start("127.0.0.1:0", nil))

	resp, body := do(t, http.MethodGet, "http://"+addr+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	require.NoError(t, s.Stop(context.Background()))
	require.Empty(t, s.Addr())
	require.NoError(t, s.Stop(context.Background()))
}
