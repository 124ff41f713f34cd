package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

const (
	sqlInsertReading = `INSERT INTO readings
(device_id, soil, water_tank, raining, pump_reported, temp_c, humidity, created_utc)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))`

	sqlReadingColumns = `SELECT device_id, soil, water_tank, raining, pump_reported, temp_c, humidity, created_utc
FROM readings`

	sqlLatestReading = sqlReadingColumns + ` WHERE device_id = $1 ORDER BY created_utc DESC, id DESC LIMIT 1`

	sqlHistory = sqlReadingColumns + ` WHERE device_id = $1 AND created_utc >= $2 AND created_utc <= $3
ORDER BY created_utc ASC, id ASC LIMIT $4`

	sqlInsertDecision = `INSERT INTO pump_decisions (device_id, mode, pump_cmd, reason, decided_utc)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))`

	sqlInsertControlEvent = `INSERT INTO control_events (device_id, event_type, mode, manual_pump_cmd, source)
VALUES ($1, $2, $3, $4, $5)`
)

func (s *Store) InsertReading(ctx context.Context, r messages.Reading) error {
	if blank(r.Device) {
		return nil
	}
	if err := s.EnsureDevice(ctx, r.Device); err != nil {
		return err
	}
	var created any
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, sqlInsertReading,
		r.Device,
		nullable(r.Soil),
		nullable(r.WaterTank),
		nullable(r.Raining),
		nullable(r.Pump),
		nullable(r.TempC),
		nullable(r.Humidity),
		created,
	)
	if err != nil {
		return fmt.Errorf("insert reading %s: %w", r.Device, err)
	}
	return nil
}

func (s *Store) LatestReading(ctx context.Context, id string) (*messages.Reading, error) {
	if blank(id) {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, sqlLatestReading, id)
	if err != nil {
		return nil, fmt.Errorf("latest reading %s: %w", id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanReading(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) History(ctx context.Context, id string, from, to time.Time, limit int) ([]messages.Reading, error) {
	limit = store.ClampHistoryLimit(limit)
	rows, err := s.db.QueryContext(ctx, sqlHistory, id, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	defer rows.Close()

	out := make([]messages.Reading, 0)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReading(rows *sql.Rows) (messages.Reading, error) {
	var (
		r         messages.Reading
		soil      sql.NullInt64
		tank      sql.NullInt64
		raining   sql.NullBool
		pump      sql.NullBool
		temp      sql.NullFloat64
		humidity  sql.NullFloat64
		createdAt time.Time
	)
	if err := rows.Scan(&r.Device, &soil, &tank, &raining, &pump, &temp, &humidity, &createdAt); err != nil {
		return r, fmt.Errorf("scan reading: %w", err)
	}
	r.Soil = intPtr(soil)
	r.WaterTank = intPtr(tank)
	r.Raining = boolPtr(raining)
	r.Pump = boolPtr(pump)
	r.TempC = floatPtr(temp)
	r.Humidity = floatPtr(humidity)
	r.CreatedAt = createdAt.UTC()
	return r, nil
}

func (s *Store) InsertDecision(ctx context.Context, d messages.PumpDecision) error {
	if blank(d.Device) {
		return nil
	}
	var decided any
	if !d.DecidedAt.IsZero() {
		decided = d.DecidedAt.UTC()
	}
	mode := d.Mode
	if !mode.Valid() {
		mode = entities.ModeAuto
	}
	if _, err := s.db.ExecContext(ctx, sqlInsertDecision, d.Device, string(mode), d.PumpCmd, d.Reason, decided); err != nil {
		return fmt.Errorf("insert decision %s: %w", d.Device, err)
	}
	return nil
}

func (s *Store) InsertControlEvent(ctx context.Context, ev entities.ControlEvent) error {
	if blank(ev.Device) {
		return nil
	}
	if ev.Source == "" {
		ev.Source = entities.DefaultControlSource
	}
	var mode any
	if ev.Mode != nil {
		mode = string(*ev.Mode)
	}
	if _, err := s.db.ExecContext(ctx, sqlInsertControlEvent, ev.Device, string(ev.Type), mode, nullable(ev.ManualPump), ev.Source); err != nil {
		return fmt.Errorf("insert control event %s: %w", ev.Device, err)
	}
	return nil
}
