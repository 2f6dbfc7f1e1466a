package store

const schema = `
-- Tracked servers
CREATE TABLE IF NOT EXISTS servers (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT    NOT NULL UNIQUE,
    address     TEXT    NOT NULL DEFAULT '',
    status      INTEGER NOT NULL DEFAULT 0,
    description TEXT    NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

-- Health samples, append-only, one per server per collection cycle
CREATE TABLE IF NOT EXISTS metrics (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id     INTEGER NOT NULL,
    cpu_usage     REAL    NOT NULL,
    memory_usage  REAL    NOT NULL,
    disk_usage    REAL    NOT NULL,
    response_time REAL    NOT NULL,
    status        INTEGER NOT NULL,
    ts            INTEGER NOT NULL,
    FOREIGN KEY (server_id) REFERENCES servers(id)
);

-- Threshold breaches, append-only from the collector
CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id   INTEGER NOT NULL,
    metric_type TEXT    NOT NULL,
    value       REAL    NOT NULL,
    threshold   REAL    NOT NULL,
    severity    TEXT    NOT NULL,
    created_at  INTEGER NOT NULL,
    resolved_at INTEGER,
    FOREIGN KEY (server_id) REFERENCES servers(id)
);

-- Report requests and their generation state
CREATE TABLE IF NOT EXISTS reports (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id     INTEGER NOT NULL,
    name          TEXT    NOT NULL,
    start_time    INTEGER NOT NULL,
    end_time      INTEGER NOT NULL,
    status        INTEGER NOT NULL DEFAULT 0,
    file_path     TEXT    NOT NULL DEFAULT '',
    error_message TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    completed_at  INTEGER,
    FOREIGN KEY (server_id) REFERENCES servers(id)
);

-- Secondary indexes
CREATE INDEX IF NOT EXISTS idx_metrics_server_ts ON metrics(server_id, ts);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_reports_server ON reports(server_id, status);
`
