package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
)

// Querier is satisfied by api.QueryAPI.
type Querier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// TimelineEvent is one system_event row with its fields pivoted.
type TimelineEvent struct {
	Time          string         `json:"time"` // RFC3339
	EventType     string         `json:"event_type"`
	SourceService string         `json:"source_service"`
	Device        string         `json:"device"`
	Severity      string         `json:"severity"`
	Fields        map[string]any `json:"fields"`
}

type timelineParams struct {
	Device    string
	EventType string
	Minutes   int
	Limit     int
	TimeoutMS int
}

func parseTimeline(r *http.Request) timelineParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	return timelineParams{
		Device:    strings.TrimSpace(q.Get("device")),
		EventType: strings.ToUpper(strings.TrimSpace(q.Get("type"))),
		Minutes:   get("minutes", 1440, 1, 7*24*60),
		Limit:     get("limit", 50, 1, 500),
		TimeoutMS: get("timeout_ms", 2000, 200, 5000),
	}
}

func buildFlux(bucket string, p timelineParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", bucket)
	fmt.Fprintf(&b, "  |> range(start: -%dm)\n", p.Minutes)
	b.WriteString(`  |> filter(fn: (r) => r._measurement == "system_event")` + "\n")
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r.device == %q)\n", p.Device)
	if p.EventType != "" {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r.event_type == %q)\n", p.EventType)
	}
	b.WriteString(`  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")` + "\n")
	b.WriteString(`  |> group()` + "\n")
	b.WriteString(`  |> sort(columns: ["_time"], desc: true)` + "\n")
	fmt.Fprintf(&b, "  |> limit(n: %d)\n", p.Limit)
	return b.String()
}

// colonne di sistema e tag, non finiscono in Fields
var reserved = map[string]bool{
	"result": true, "table": true, "_start": true, "_stop": true, "_time": true,
	"_measurement": true, "event_type": true, "source_service": true,
	"device": true, "severity": true,
}

func readTimeline(res *api.QueryTableResult, limit int) ([]TimelineEvent, error) {
	defer func() { _ = res.Close() }()

	out := make([]TimelineEvent, 0, limit)
	for res.Next() {
		rec := res.Record()
		ev := TimelineEvent{
			Time:   rec.Time().UTC().Format(time.RFC3339Nano),
			Fields: map[string]any{},
		}
		ev.EventType, _ = rec.ValueByKey("event_type").(string)
		ev.SourceService, _ = rec.ValueByKey("source_service").(string)
		ev.Device, _ = rec.ValueByKey("device").(string)
		ev.Severity, _ = rec.ValueByKey("severity").(string)
		for k, v := range rec.Values() {
			if reserved[k] || v == nil {
				continue
			}
			ev.Fields[k] = v
		}
		out = append(out, ev)
	}
	if err := res.Err(); err != nil {
		return out, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	return out, nil
}

// NewTimelineHandler serves
// GET /events?device=D[&type=ALERT][&minutes=1440][&limit=50][&timeout_ms=2000].
// A failed query degrades to an empty list with an X-Error header.
func NewTimelineHandler(q Querier, bucket string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := parseTimeline(r)
		w.Header().Set("Content-Type", "application/json")
		if p.Device == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing device"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		res, err := q.Query(ctx, buildFlux(bucket, p))
		if err != nil {
			logger.Warn("influx query error", zap.String("device", p.Device), zap.Error(err))
			w.Header().Set("X-Error", "influx-query-error")
			_, _ = w.Write([]byte("[]"))
			return
		}
		out, err := readTimeline(res, p.Limit)
		if err != nil {
			logger.Warn("influx iter error", zap.String("device", p.Device), zap.Error(err))
			w.Header().Set("X-Error", "influx-iter-error")
		}
		_ = json.NewEncoder(w).Encode(out)
	})
}
