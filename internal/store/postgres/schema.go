package postgres

const Schema = `
CREATE TABLE IF NOT EXISTS devices (
    device_id     TEXT PRIMARY KEY,
    created_utc   TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_seen_utc TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS device_state (
    device_id       TEXT PRIMARY KEY REFERENCES devices(device_id),
    mode            TEXT NOT NULL DEFAULT 'AUTO',
    manual_pump_cmd BOOLEAN NOT NULL DEFAULT FALSE,
    last_auto_cmd   BOOLEAN NOT NULL DEFAULT FALSE,
    updated_utc     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS readings (
    id            BIGSERIAL PRIMARY KEY,
    device_id     TEXT NOT NULL REFERENCES devices(device_id),
    soil          INTEGER NULL,
    water_tank    INTEGER NULL,
    raining       BOOLEAN NULL,
    pump_reported BOOLEAN NULL,
    temp_c        DOUBLE PRECISION NULL,
    humidity      DOUBLE PRECISION NULL,
    created_utc   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_readings_device_created ON readings(device_id, created_utc);

CREATE TABLE IF NOT EXISTS alerts (
    id          BIGSERIAL PRIMARY KEY,
    device_id   TEXT NOT NULL REFERENCES devices(device_id),
    alert_type  TEXT NOT NULL,
    severity    TEXT NOT NULL DEFAULT 'INFO',
    message     TEXT NOT NULL DEFAULT '',
    created_utc TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_alerts_device_created ON alerts(device_id, created_utc);

CREATE TABLE IF NOT EXISTS pump_decisions (
    id          BIGSERIAL PRIMARY KEY,
    device_id   TEXT NOT NULL REFERENCES devices(device_id),
    mode        TEXT NOT NULL,
    pump_cmd    BOOLEAN NOT NULL,
    reason      TEXT NOT NULL,
    decided_utc TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS control_events (
    id              BIGSERIAL PRIMARY KEY,
    device_id       TEXT NOT NULL REFERENCES devices(device_id),
    event_type      TEXT NOT NULL,
    mode            TEXT NULL,
    manual_pump_cmd BOOLEAN NULL,
    source          TEXT NOT NULL,
    created_utc     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
