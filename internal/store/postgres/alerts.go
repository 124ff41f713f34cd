package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

const (
	sqlInsertAlert = `INSERT INTO alerts (device_id, alert_type, severity, message)
VALUES ($1, $2, $3, $4) RETURNING id, created_utc`

	sqlGetAlerts = `SELECT id, device_id, alert_type, severity, message, created_utc
FROM alerts WHERE device_id = $1 AND created_utc > $2
ORDER BY created_utc ASC, id ASC LIMIT $3`
)

func (s *Store) InsertAlert(ctx context.Context, id string, typ entities.AlertType, sev entities.Severity, msg string) (entities.Alert, error) {
	if blank(id) || typ == "" {
		return entities.Alert{}, fmt.Errorf("insert alert: device and type are required")
	}
	if sev == "" {
		sev = entities.SeverityInfo
	}
	if err := s.EnsureDevice(ctx, id); err != nil {
		return entities.Alert{}, err
	}

	a := entities.Alert{Device: id, Type: typ, Severity: sev, Message: msg}
	if err := s.db.QueryRowContext(ctx, sqlInsertAlert, id, string(typ), string(sev), msg).Scan(&a.ID, &a.CreatedAt); err != nil {
		return entities.Alert{}, fmt.Errorf("insert alert %s/%s: %w", id, typ, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (s *Store) GetAlerts(ctx context.Context, id string, since time.Time, limit int) ([]entities.Alert, error) {
	if blank(id) {
		return []entities.Alert{}, nil
	}
	limit = store.ClampAlertLimit(limit)
	rows, err := s.db.QueryContext(ctx, sqlGetAlerts, id, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("get alerts %s: %w", id, err)
	}
	defer rows.Close()

	out := make([]entities.Alert, 0)
	for rows.Next() {
		var (
			a        entities.Alert
			typ, sev string
		)
		if err := rows.Scan(&a.ID, &a.Device, &typ, &sev, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = entities.AlertType(typ)
		a.Severity = entities.Severity(sev)
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
