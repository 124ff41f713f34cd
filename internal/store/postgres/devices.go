package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

const (
	sqlEnsureDevice = `INSERT INTO devices (device_id) VALUES ($1) ON CONFLICT (device_id) DO NOTHING`

	sqlTouchLastSeen = `INSERT INTO devices (device_id, last_seen_utc) VALUES ($1, now())
ON CONFLICT (device_id) DO UPDATE SET last_seen_utc = EXCLUDED.last_seen_utc`

	sqlSelectState = `SELECT mode, manual_pump_cmd, last_auto_cmd FROM device_state WHERE device_id = $1`

	sqlUpsertState = `INSERT INTO device_state (device_id, mode, manual_pump_cmd, last_auto_cmd, updated_utc)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (device_id) DO UPDATE SET mode = EXCLUDED.mode, manual_pump_cmd = EXCLUDED.manual_pump_cmd,
last_auto_cmd = EXCLUDED.last_auto_cmd, updated_utc = now()`

	sqlListDevices = `SELECT device_id FROM devices ORDER BY device_id ASC`

	// diff_sec is computed by the database clock so callers in other
	// timezones or with skewed clocks agree on liveness.
	sqlStatusColumns = `SELECT device_id, last_seen_utc,
FLOOR(EXTRACT(EPOCH FROM (now() - last_seen_utc)))::BIGINT AS diff_sec
FROM devices`
	sqlGetStatus  = sqlStatusColumns + ` WHERE device_id = $1`
	sqlListStatus = sqlStatusColumns + ` ORDER BY device_id ASC`
)

func blank(id string) bool { return strings.TrimSpace(id) == "" }

func (s *Store) EnsureDevice(ctx context.Context, id string) error {
	if blank(id) {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, sqlEnsureDevice, id); err != nil {
		return fmt.Errorf("ensure device %s: %w", id, err)
	}
	return nil
}

func (s *Store) TouchLastSeen(ctx context.Context, id string) error {
	if blank(id) {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, sqlTouchLastSeen, id); err != nil {
		return fmt.Errorf("touch last seen %s: %w", id, err)
	}
	return nil
}

func (s *Store) LoadOrCreateState(ctx context.Context, id string) (entities.ControlState, error) {
	if blank(id) {
		return entities.DefaultControlState(), nil
	}
	if err := s.EnsureDevice(ctx, id); err != nil {
		return entities.ControlState{}, err
	}

	var (
		mode string
		st   entities.ControlState
	)
	err := s.db.QueryRowContext(ctx, sqlSelectState, id).Scan(&mode, &st.ManualPumpCmd, &st.LastAutoCmd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		def := entities.DefaultControlState()
		if err := s.UpsertState(ctx, id, def); err != nil {
			return entities.ControlState{}, err
		}
		return def, nil
	case err != nil:
		return entities.ControlState{}, fmt.Errorf("load state %s: %w", id, err)
	}

	// stored values other than MANUAL fall back to AUTO
	if m, perr := entities.ParseMode(mode); perr == nil {
		st.Mode = m
	} else {
		st.Mode = entities.ModeAuto
	}
	return st, nil
}

func (s *Store) UpsertState(ctx context.Context, id string, st entities.ControlState) error {
	if blank(id) {
		return nil
	}
	if !st.Mode.Valid() {
		st.Mode = entities.ModeAuto
	}
	if err := s.EnsureDevice(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqlUpsertState, id, string(st.Mode), st.ManualPumpCmd, st.LastAutoCmd); err != nil {
		return fmt.Errorf("upsert state %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListDevices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, sqlListDevices)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) GetStatus(ctx context.Context, id string, offlineSec int) (entities.DeviceStatus, error) {
	offlineSec = store.OfflineThreshold(offlineSec)
	if blank(id) {
		return entities.UnknownStatus(id), nil
	}
	rows, err := s.db.QueryContext(ctx, sqlGetStatus, id)
	if err != nil {
		return entities.DeviceStatus{}, fmt.Errorf("get status %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return entities.DeviceStatus{}, err
		}
		return entities.UnknownStatus(id), nil
	}
	return scanStatus(rows, offlineSec)
}

func (s *Store) ListStatus(ctx context.Context, offlineSec int) ([]entities.DeviceStatus, error) {
	offlineSec = store.OfflineThreshold(offlineSec)
	rows, err := s.db.QueryContext(ctx, sqlListStatus)
	if err != nil {
		return nil, fmt.Errorf("list status: %w", err)
	}
	defer rows.Close()

	out := make([]entities.DeviceStatus, 0)
	for rows.Next() {
		st, err := scanStatus(rows, offlineSec)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStatus(rows *sql.Rows, offlineSec int) (entities.DeviceStatus, error) {
	var (
		id   string
		last sql.NullTime
		diff sql.NullInt64
	)
	if err := rows.Scan(&id, &last, &diff); err != nil {
		return entities.DeviceStatus{}, fmt.Errorf("scan status: %w", err)
	}
	if !last.Valid || !diff.Valid {
		return entities.UnknownStatus(id), nil
	}
	return entities.StatusFrom(id, last.Time.In(time.UTC), diff.Int64, offlineSec), nil
}
