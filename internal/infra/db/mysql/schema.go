package mysql

import "github.com/bryanwahyu/footprint/internal/infra/db/sqlstore"

// Migrations returns the mysql schema history, same versions as postgres.
func Migrations() []sqlstore.Migration {
	return []sqlstore.Migration{
		{
			Version:     1,
			Description: "workspaces, scans and credits ledger",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS workspaces (
    id                 VARCHAR(64) PRIMARY KEY,
    name               VARCHAR(255) NOT NULL,
    tier               VARCHAR(16) NOT NULL DEFAULT 'free',
    scan_limit_monthly INT NULL,
    scans_used_monthly INT NOT NULL DEFAULT 0,
    usage_period       CHAR(7) NULL,
    created_at         DATETIME(6) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
				`CREATE TABLE IF NOT EXISTS scans (
    id              VARCHAR(64) PRIMARY KEY,
    workspace_id    VARCHAR(64) NOT NULL,
    target_type     VARCHAR(16) NOT NULL,
    target_value    VARCHAR(255) NOT NULL,
    providers       JSON NOT NULL,
    status          VARCHAR(16) NOT NULL,
    credits_used    INT NOT NULL DEFAULT 0,
    high            INT NOT NULL DEFAULT 0,
    medium          INT NOT NULL DEFAULT 0,
    low             INT NOT NULL DEFAULT 0,
    info            INT NOT NULL DEFAULT 0,
    findings_total  INT NOT NULL DEFAULT 0,
    privacy_score   INT NULL,
    provider_counts JSON NULL,
    error_message   TEXT NULL,
    source          VARCHAR(32) NULL,
    created_at      DATETIME(6) NOT NULL,
    started_at      DATETIME(6) NULL,
    finished_at     DATETIME(6) NULL,
    archived_at     DATETIME(6) NULL,
    INDEX idx_scans_workspace_created (workspace_id, created_at),
    CONSTRAINT fk_scans_workspace FOREIGN KEY (workspace_id) REFERENCES workspaces(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
				`CREATE TABLE IF NOT EXISTS credits_ledger (
    id           VARCHAR(64) PRIMARY KEY,
    workspace_id VARCHAR(64) NOT NULL,
    delta        INT NOT NULL,
    reason       VARCHAR(32) NOT NULL,
    ref_id       VARCHAR(64) NULL,
    meta         JSON NULL,
    created_at   DATETIME(6) NOT NULL,
    INDEX idx_credits_ledger_workspace (workspace_id, created_at),
    CONSTRAINT fk_ledger_workspace FOREIGN KEY (workspace_id) REFERENCES workspaces(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			},
		},
		{
			Version:     2,
			Description: "findings, social profiles and provider events",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS findings (
    id           VARCHAR(64) PRIMARY KEY,
    scan_id      VARCHAR(64) NOT NULL,
    workspace_id VARCHAR(64) NOT NULL,
    provider     VARCHAR(64) NOT NULL,
    kind         VARCHAR(64) NOT NULL,
    severity     VARCHAR(16) NOT NULL,
    confidence   DOUBLE NOT NULL DEFAULT 0,
    evidence     JSON NOT NULL,
    meta         JSON NULL,
    observed_at  DATETIME(6) NOT NULL,
    INDEX idx_findings_scan (workspace_id, scan_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
				`CREATE TABLE IF NOT EXISTS social_profiles (
    id          VARCHAR(64) PRIMARY KEY,
    scan_id     VARCHAR(64) NOT NULL,
    provider    VARCHAR(64) NOT NULL,
    platform    VARCHAR(128) NOT NULL,
    username    VARCHAR(255) NULL,
    url         TEXT NULL,
    found       BOOLEAN NOT NULL DEFAULT FALSE,
    status      VARCHAR(32) NULL,
    meta        JSON NULL,
    observed_at DATETIME(6) NOT NULL,
    INDEX idx_social_profiles_scan (scan_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
				`CREATE TABLE IF NOT EXISTS provider_events (
    id           BIGINT AUTO_INCREMENT PRIMARY KEY,
    workspace_id VARCHAR(64) NOT NULL,
    scan_id      VARCHAR(64) NOT NULL,
    provider     VARCHAR(64) NOT NULL,
    event        VARCHAR(16) NOT NULL,
    message      TEXT NULL,
    result_count INT NOT NULL DEFAULT 0,
    duration_ms  BIGINT NOT NULL DEFAULT 0,
    details_json JSON NULL,
    created_at   DATETIME(6) NOT NULL,
    INDEX idx_provider_events_scan (scan_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			},
		},
		{
			Version:     3,
			Description: "scan progress snapshots and analyses",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS scan_progress (
    scan_id    VARCHAR(64) PRIMARY KEY,
    version    BIGINT NOT NULL,
    status     VARCHAR(16) NOT NULL,
    percent    INT NOT NULL DEFAULT 0,
    data       JSON NOT NULL,
    updated_at DATETIME(6) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
				`CREATE TABLE IF NOT EXISTS analyses (
    id           VARCHAR(64) PRIMARY KEY,
    workspace_id VARCHAR(64) NOT NULL,
    scan_id      VARCHAR(64) NOT NULL,
    model        VARCHAR(64) NOT NULL,
    result_json  JSON NOT NULL,
    created_at   DATETIME(6) NOT NULL,
    INDEX idx_analyses_scan (workspace_id, scan_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			},
		},
	}
}
