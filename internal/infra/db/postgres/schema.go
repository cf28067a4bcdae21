package postgres

import "github.com/bryanwahyu/footprint/internal/infra/db/sqlstore"

// Migrations returns the postgres schema history.
func Migrations() []sqlstore.Migration {
	return []sqlstore.Migration{
		{
			Version:     1,
			Description: "workspaces, scans and credits ledger",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS workspaces (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    tier               TEXT NOT NULL DEFAULT 'free',
    scan_limit_monthly INTEGER,
    scans_used_monthly INTEGER NOT NULL DEFAULT 0,
    usage_period       CHAR(7),
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
				`CREATE TABLE IF NOT EXISTS scans (
    id              TEXT PRIMARY KEY,
    workspace_id    TEXT NOT NULL REFERENCES workspaces(id),
    target_type     TEXT NOT NULL,
    target_value    TEXT NOT NULL,
    providers       JSONB NOT NULL DEFAULT '[]',
    status          TEXT NOT NULL,
    credits_used    INTEGER NOT NULL DEFAULT 0,
    high            INTEGER NOT NULL DEFAULT 0,
    medium          INTEGER NOT NULL DEFAULT 0,
    low             INTEGER NOT NULL DEFAULT 0,
    info            INTEGER NOT NULL DEFAULT 0,
    findings_total  INTEGER NOT NULL DEFAULT 0,
    privacy_score   INTEGER,
    provider_counts JSONB,
    error_message   TEXT,
    source          TEXT,
    created_at      TIMESTAMPTZ NOT NULL,
    started_at      TIMESTAMPTZ,
    finished_at     TIMESTAMPTZ,
    archived_at     TIMESTAMPTZ,
    CONSTRAINT scans_status_check CHECK (status IN ('queued', 'running', 'finished', 'error', 'timeout', 'cancelled'))
)`,
				`CREATE INDEX IF NOT EXISTS idx_scans_workspace_created ON scans(workspace_id, created_at DESC)`,
				`CREATE TABLE IF NOT EXISTS credits_ledger (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL REFERENCES workspaces(id),
    delta        INTEGER NOT NULL,
    reason       TEXT NOT NULL,
    ref_id       TEXT,
    meta         JSONB,
    created_at   TIMESTAMPTZ NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_credits_ledger_workspace ON credits_ledger(workspace_id, created_at DESC)`,
			},
		},
		{
			Version:     2,
			Description: "findings, social profiles and provider events",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS findings (
    id           TEXT PRIMARY KEY,
    scan_id      TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    workspace_id TEXT NOT NULL,
    provider     TEXT NOT NULL,
    kind         TEXT NOT NULL,
    severity     TEXT NOT NULL,
    confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
    evidence     JSONB NOT NULL DEFAULT '[]',
    meta         JSONB,
    observed_at  TIMESTAMPTZ NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_findings_scan ON findings(workspace_id, scan_id)`,
				`CREATE TABLE IF NOT EXISTS social_profiles (
    id          TEXT PRIMARY KEY,
    scan_id     TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    provider    TEXT NOT NULL,
    platform    TEXT NOT NULL,
    username    TEXT,
    url         TEXT,
    found       BOOLEAN NOT NULL DEFAULT FALSE,
    status      TEXT,
    meta        JSONB,
    observed_at TIMESTAMPTZ NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_social_profiles_scan ON social_profiles(scan_id)`,
				`CREATE TABLE IF NOT EXISTS provider_events (
    id           BIGSERIAL PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    scan_id      TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    provider     TEXT NOT NULL,
    event        TEXT NOT NULL,
    message      TEXT,
    result_count INTEGER NOT NULL DEFAULT 0,
    duration_ms  BIGINT NOT NULL DEFAULT 0,
    details_json JSONB,
    created_at   TIMESTAMPTZ NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_provider_events_scan ON provider_events(scan_id, created_at)`,
			},
		},
		{
			Version:     3,
			Description: "scan progress snapshots and analyses",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS scan_progress (
    scan_id    TEXT PRIMARY KEY,
    version    BIGINT NOT NULL,
    status     TEXT NOT NULL,
    percent    INTEGER NOT NULL DEFAULT 0,
    data       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
				`CREATE TABLE IF NOT EXISTS analyses (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    scan_id      TEXT NOT NULL,
    model        TEXT NOT NULL,
    result_json  JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_analyses_scan ON analyses(workspace_id, scan_id, created_at DESC)`,
			},
		},
	}
}
