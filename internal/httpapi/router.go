// Package httpapi is the operator HTTP surface: health, status, a JSON API
// over the reminder engine, pprof and the MCP endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"remindbot/internal/reminder"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
)

type Engine interface {
	Create(ctx context.Context, owner int64, name string, tod wallclock.TimeOfDay) (reminder.Reminder, error)
	Delete(ctx context.Context, owner int64, name string) (bool, error)
	Acknowledge(ctx context.Context, owner int64, name string) (reminder.Reminder, error)
	Snooze(ctx context.Context, owner int64, name string, minutes int) (time.Time, error)
	List(owner int64) []reminder.Reminder
}

type Options struct {
	Engine Engine
	// Status renders GET /status.
	Status func() any
	Pprof  bool
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	Log logx.Logger
}

const maxBody = 64 << 10

type api struct {
	eng    Engine
	status func() any
	log    logx.Logger
}

func NewRouter(opt Options) http.Handler {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &api{eng: opt.Engine, status: opt.Status, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", a.getStatus)

	r.Route("/reminders/{owner}", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Delete("/{name}", a.remove)
		r.Post("/{name}/ack", a.acknowledge)
		r.Post("/{name}/snooze", a.snooze)
	})

	if opt.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	if opt.MCP != nil {
		r.Handle("/mcp", opt.MCP)
	}
	return r
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			fields := []logx.Field{
				logx.String("rid", middleware.GetReqID(r.Context())),
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("dur", time.Since(start)),
			}
			if ww.Status() >= http.StatusInternalServerError {
				log.Warn("http request failed", fields...)
				return
			}
			log.Debug("http request", fields...)
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy onto status codes.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reminder.ErrInvalidInput):
		status = http.StatusBadRequest
	default:
		a.log.Error("http handler failed", logx.String("rid", middleware.GetReqID(r.Context())), logx.Err(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(reminder.ErrInvalidInput, err)
	}
	return nil
}

func ownerParam(r *http.Request) (int64, error) {
	owner, err := strconv.ParseInt(chi.URLParam(r, "owner"), 10, 64)
	if err != nil || owner == 0 {
		return 0, errors.Join(reminder.ErrInvalidInput, errors.New("owner must be a non-zero integer"))
	}
	return owner, nil
}

// nameParam returns the decoded {name} segment. chi routes on RawPath when it
// is set, leaving the segment escaped; otherwise it is already decoded.
func nameParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return raw
	}
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func (a *api) getStatus(w http.ResponseWriter, r *http.Request) {
	if a.status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, a.status())
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.eng.List(owner))
}

type createRequest struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req createRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	tod, err := wallclock.ParseTimeOfDay(req.Time)
	if err != nil {
		a.writeError(w, r, errors.Join(reminder.ErrInvalidInput, err))
		return
	}
	rem, err := a.eng.Create(r.Context(), owner, req.Name, tod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (a *api) remove(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if _, err := a.eng.Delete(r.Context(), owner, nameParam(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) acknowledge(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	rem, err := a.eng.Acknowledge(r.Context(), owner, nameParam(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// snoozeRequest takes either minutes or a delay string such as "30m".
type snoozeRequest struct {
	Minutes int    `json:"minutes"`
	Delay   string `json:"delay"`
}

type snoozeResponse struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

func (a *api) snooze(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req snoozeRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	minutes := req.Minutes
	if strings.TrimSpace(req.Delay) != "" {
		if minutes, err = reminder.ParseDelay(req.Delay); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	name := nameParam(r)
	at, err := a.eng.Snooze(r.Context(), owner, name, minutes)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snoozeResponse{Name: name, At: at})
}
