package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the ballot store (SQLite).
var Migrations = migrate.NewGroup("ballot")

// Schema statements, one per migration, in order.
const (
	projectsSchema = `
CREATE TABLE IF NOT EXISTS ballot_projects (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    registrant  TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
`

	votersSchema = `
CREATE TABLE IF NOT EXISTS ballot_voters (
    address               TEXT PRIMARY KEY,
    total_votes           INTEGER NOT NULL DEFAULT 0,
    free_votes_this_month INTEGER NOT NULL DEFAULT 0,
    last_vote_month       INTEGER NOT NULL DEFAULT 0,
    created_at            TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at            TEXT NOT NULL DEFAULT (datetime('now'))
);
`

	// A vote row and its voter aggregate commit in one INSERT: the BEFORE
	// trigger rejects a stale sequence number, the AFTER trigger folds the
	// vote into ballot_voters.
	votesSchema = `
CREATE TABLE IF NOT EXISTS ballot_votes (
    id                    TEXT PRIMARY KEY,
    voter                 TEXT NOT NULL,
    project_id            INTEGER NOT NULL,
    seq                   INTEGER NOT NULL,
    month                 INTEGER NOT NULL,
    free_votes_this_month INTEGER NOT NULL DEFAULT 0,
    billable              INTEGER NOT NULL DEFAULT 0,
    fee                   TEXT NOT NULL DEFAULT '0',
    cast_at               TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ballot_votes_voter_project ON ballot_votes (voter, project_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ballot_votes_voter_seq ON ballot_votes (voter, seq);

CREATE TRIGGER IF NOT EXISTS ballot_votes_check_seq BEFORE INSERT ON ballot_votes
BEGIN
    SELECT RAISE(ABORT, 'ballot: vote sequence conflict')
    WHERE NEW.seq != COALESCE((SELECT total_votes FROM ballot_voters WHERE address = NEW.voter), 0) + 1;
END;

CREATE TRIGGER IF NOT EXISTS ballot_votes_apply AFTER INSERT ON ballot_votes
BEGIN
    INSERT INTO ballot_voters (address, total_votes, free_votes_this_month, last_vote_month, created_at, updated_at)
    VALUES (NEW.voter, NEW.seq, NEW.free_votes_this_month, NEW.month, NEW.cast_at, NEW.cast_at)
    ON CONFLICT (address) DO UPDATE SET
        total_votes = excluded.total_votes,
        free_votes_this_month = excluded.free_votes_this_month,
        last_vote_month = excluded.last_vote_month,
        updated_at = excluded.updated_at;
END;
`

	// Inserting a fee change updates the settings row through a trigger.
	feesSchema = `
CREATE TABLE IF NOT EXISTS ballot_fee_settings (
    id               INTEGER PRIMARY KEY CHECK (id = 1),
    token_fee_amount TEXT NOT NULL DEFAULT '0',
    updated_by       TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ballot_fee_changes (
    id         TEXT PRIMARY KEY,
    previous   TEXT NOT NULL DEFAULT '0',
    amount     TEXT NOT NULL DEFAULT '0',
    updated_by TEXT NOT NULL DEFAULT '',
    changed_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ballot_fee_changes_changed_at ON ballot_fee_changes (changed_at);

CREATE TRIGGER IF NOT EXISTS ballot_fee_changes_apply AFTER INSERT ON ballot_fee_changes
BEGIN
    INSERT INTO ballot_fee_settings (id, token_fee_amount, updated_by, created_at, updated_at)
    VALUES (1, NEW.amount, NEW.updated_by, NEW.changed_at, NEW.changed_at)
    ON CONFLICT (id) DO UPDATE SET
        token_fee_amount = excluded.token_fee_amount,
        updated_by = excluded.updated_by,
        updated_at = excluded.updated_at;
END;

CREATE TABLE IF NOT EXISTS ballot_withdrawals (
    id           TEXT PRIMARY KEY,
    owner        TEXT NOT NULL DEFAULT '',
    amount       TEXT NOT NULL DEFAULT '0',
    withdrawn_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ballot_withdrawals_withdrawn_at ON ballot_withdrawals (withdrawn_at);
`
)

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_ballot_projects",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, projectsSchema)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ballot_projects`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ballot_voters",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, votersSchema)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ballot_voters`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ballot_votes",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, votesSchema)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS ballot_votes_apply;
DROP TRIGGER IF EXISTS ballot_votes_check_seq;
DROP TABLE IF EXISTS ballot_votes;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ballot_fees",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, feesSchema)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS ballot_withdrawals;
DROP TRIGGER IF EXISTS ballot_fee_changes_apply;
DROP TABLE IF EXISTS ballot_fee_changes;
DROP TABLE IF EXISTS ballot_fee_settings;
`)
				return err
			},
		},
	)
}
