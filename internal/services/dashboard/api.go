// Package dashboard serves the operator REST API and the live alert feeds.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/resilient"
)

// Backend is what the dashboard needs from the core.
type Backend interface {
	AlertSource

	GetLatest(ctx context.Context, device string) (*messages.Reading, error)
	GetHistory(ctx context.Context, device string, from, to time.Time, limit int) ([]messages.Reading, error)
	GetMode(ctx context.Context, device string) (entities.Mode, error)
	SetMode(ctx context.Context, device, mode string) (entities.Mode, error)
	GetManualPump(ctx context.Context, device string) (bool, error)
	SetManualPump(ctx context.Context, device string, on bool) (bool, error)
	ListDevices(ctx context.Context) ([]string, error)
	GetStatus(ctx context.Context, device string, offlineSec int) (entities.DeviceStatus, error)
	ListStatus(ctx context.Context, offlineSec int) ([]entities.DeviceStatus, error)
	GetSummary(ctx context.Context, device string, offlineSec int, since time.Time, alertLimit int) (messages.DeviceSummary, error)
	ListSummaries(ctx context.Context, offlineSec int, since time.Time) ([]messages.SummaryRow, error)
}

const (
	defaultOfflineSec = 20
	defaultLimit      = 200
	defaultAlertLimit = 10
)

var epoch = time.Unix(0, 0).UTC()

type API struct {
	core        Backend
	broadcaster *Broadcaster
	cursor      *CursorStream
	logger      *zap.Logger
}

func NewAPI(core Backend, b *Broadcaster, c *CursorStream, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{core: core, broadcaster: b, cursor: c, logger: logger}
}

func (a *API) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.ready)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/alerts/stream", a.streamAlertsByCursor)

	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/", a.listDevices)
		r.Get("/status", a.listStatus)
		r.Get("/summary", a.listSummaries)

		r.Route("/{device}", func(r chi.Router) {
			r.Get("/latest", a.latest)
			r.Get("/history", a.history)
			r.Get("/mode", a.getMode)
			r.Post("/mode", a.setMode)
			r.Get("/manual-pump", a.getManualPump)
			r.Post("/manual-pump", a.setManualPump)
			r.Get("/alerts", a.alerts)
			r.Get("/alerts/stream", a.streamAlerts)
			r.Get("/status", a.status)
			r.Get("/summary", a.summary)
		})
	})
	return r
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := a.core.ListDevices(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "core unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func (a *API) listDevices(w http.ResponseWriter, r *http.Request) {
	ds, err := a.core.ListDevices(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	if ds == nil {
		ds = []string{}
	}
	writeJSON(w, http.StatusOK, ds)
}

func (a *API) listStatus(w http.ResponseWriter, r *http.Request) {
	off, ok := queryInt(w, r, "offlineSec", defaultOfflineSec)
	if !ok {
		return
	}
	sts, err := a.core.ListStatus(r.Context(), off)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sts)
}

func (a *API) listSummaries(w http.ResponseWriter, r *http.Request) {
	off, ok := queryInt(w, r, "offlineSec", defaultOfflineSec)
	if !ok {
		return
	}
	since, ok := queryTime(w, r, "sinceUtc", epoch)
	if !ok {
		return
	}
	rows, err := a.core.ListSummaries(r.Context(), off, since)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) latest(w http.ResponseWriter, r *http.Request) {
	rd, err := a.core.GetLatest(r.Context(), chi.URLParam(r, "device"))
	if err != nil {
		a.fail(w, err)
		return
	}
	// null when the device never reported
	writeJSON(w, http.StatusOK, rd)
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("fromUtc") == "" || q.Get("toUtc") == "" {
		writeError(w, http.StatusBadRequest, "fromUtc and toUtc are required")
		return
	}
	from, ok := queryTime(w, r, "fromUtc", time.Time{})
	if !ok {
		return
	}
	to, ok := queryTime(w, r, "toUtc", time.Time{})
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	rs, err := a.core.GetHistory(r.Context(), chi.URLParam(r, "device"), from, to, limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (a *API) getMode(w http.ResponseWriter, r *http.Request) {
	m, err := a.core.GetMode(r.Context(), chi.URLParam(r, "device"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) setMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode *string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Mode == nil {
		writeError(w, http.StatusBadRequest, "mode is required (AUTO or MANUAL)")
		return
	}
	if _, err := entities.ParseMode(*body.Mode); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid mode. Use AUTO or MANUAL")
		return
	}
	device := chi.URLParam(r, "device")
	if _, err := a.core.SetMode(r.Context(), device, *body.Mode); err != nil {
		a.fail(w, err)
		return
	}
	// return the saved value
	m, err := a.core.GetMode(r.Context(), device)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) getManualPump(w http.ResponseWriter, r *http.Request) {
	on, err := a.core.GetManualPump(r.Context(), chi.URLParam(r, "device"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, on)
}

func (a *API) setManualPump(w http.ResponseWriter, r *http.Request) {
	var body struct {
		On *bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.On == nil {
		writeError(w, http.StatusBadRequest, `Body required: {"on": true/false}`)
		return
	}
	device := chi.URLParam(r, "device")
	if _, err := a.core.SetManualPump(r.Context(), device, *body.On); err != nil {
		a.fail(w, err)
		return
	}
	on, err := a.core.GetManualPump(r.Context(), device)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, on)
}

func (a *API) alerts(w http.ResponseWriter, r *http.Request) {
	since, ok := queryTime(w, r, "sinceUtc", epoch)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	as, err := a.core.GetAlerts(r.Context(), chi.URLParam(r, "device"), since, limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	if as == nil {
		as = []entities.Alert{}
	}
	writeJSON(w, http.StatusOK, as)
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	off, ok := queryInt(w, r, "offlineSec", defaultOfflineSec)
	if !ok {
		return
	}
	st, err := a.core.GetStatus(r.Context(), chi.URLParam(r, "device"), off)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) summary(w http.ResponseWriter, r *http.Request) {
	off, ok := queryInt(w, r, "offlineSec", defaultOfflineSec)
	if !ok {
		return
	}
	since, ok := queryTime(w, r, "sinceUtc", epoch)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "alertLimit", defaultAlertLimit)
	if !ok {
		return
	}
	sum, err := a.core.GetSummary(r.Context(), chi.URLParam(r, "device"), off, since, limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// fail maps core errors to HTTP statuses.
func (a *API) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrBlankDevice):
		code = http.StatusBadRequest
	case resilient.IsTransport(err):
		code = http.StatusServiceUnavailable
	default:
		switch status.Code(err) {
		case codes.InvalidArgument:
			code = http.StatusBadRequest
		case codes.NotFound:
			code = http.StatusNotFound
		case codes.Unavailable, codes.DeadlineExceeded:
			code = http.StatusServiceUnavailable
		}
	}
	if code >= 500 {
		a.logger.Warn("core call failed", zap.Int("status", code), zap.Error(err))
	}
	writeError(w, code, errorMessage(err))
}

func errorMessage(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return n, true
}

func queryTime(w http.ResponseWriter, r *http.Request, key string, def time.Time) (time.Time, bool) {
	t, err := parseTime(r.URL.Query().Get(key), def)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+key+" (RFC3339 expected)")
		return time.Time{}, false
	}
	return t, true
}

func parseTime(v string, def time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
