package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the ballot store.
var Migrations = migrate.NewGroup("ballot")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_ballot_projects",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ballot_projects (
    id          BIGINT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    registrant  TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
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
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ballot_voters (
    address               TEXT PRIMARY KEY,
    total_votes           BIGINT NOT NULL DEFAULT 0,
    free_votes_this_month INT NOT NULL DEFAULT 0,
    last_vote_month       BIGINT NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
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
				// The trigger locks the voter row, rejects a stale sequence
				// number and upserts the aggregate before the vote row lands,
				// so the whole commit is one INSERT statement.
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ballot_votes (
    id                    TEXT PRIMARY KEY,
    voter                 TEXT NOT NULL,
    project_id            BIGINT NOT NULL,
    seq                   BIGINT NOT NULL,
    month                 BIGINT NOT NULL,
    free_votes_this_month INT NOT NULL DEFAULT 0,
    billable              BOOLEAN NOT NULL DEFAULT FALSE,
    fee                   TEXT NOT NULL DEFAULT '0',
    cast_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ballot_votes_voter_project ON ballot_votes (voter, project_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ballot_votes_voter_seq ON ballot_votes (voter, seq);

CREATE OR REPLACE FUNCTION ballot_votes_apply() RETURNS trigger AS $$
DECLARE
    current_total BIGINT;
BEGIN
    SELECT total_votes INTO current_total FROM ballot_voters WHERE address = NEW.voter FOR UPDATE;
    IF COALESCE(current_total, 0) + 1 <> NEW.seq THEN
        RAISE EXCEPTION 'ballot: vote sequence conflict' USING ERRCODE = '40001';
    END IF;

    INSERT INTO ballot_voters (address, total_votes, free_votes_this_month, last_vote_month, created_at, updated_at)
    VALUES (NEW.voter, NEW.seq, NEW.free_votes_this_month, NEW.month, NEW.cast_at, NEW.cast_at)
    ON CONFLICT (address) DO UPDATE SET
        total_votes = EXCLUDED.total_votes,
        free_votes_this_month = EXCLUDED.free_votes_this_month,
        last_vote_month = EXCLUDED.last_vote_month,
        updated_at = EXCLUDED.updated_at;

    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ballot_votes_apply ON ballot_votes;
CREATE TRIGGER ballot_votes_apply BEFORE INSERT ON ballot_votes
    FOR EACH ROW EXECUTE FUNCTION ballot_votes_apply();
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS ballot_votes;
DROP FUNCTION IF EXISTS ballot_votes_apply();
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ballot_fees",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ballot_fee_settings (
    id               SMALLINT PRIMARY KEY CHECK (id = 1),
    token_fee_amount TEXT NOT NULL DEFAULT '0',
    updated_by       TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ballot_fee_changes (
    id         TEXT PRIMARY KEY,
    previous   TEXT NOT NULL DEFAULT '0',
    amount     TEXT NOT NULL DEFAULT '0',
    updated_by TEXT NOT NULL DEFAULT '',
    changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ballot_fee_changes_changed_at ON ballot_fee_changes (changed_at);

CREATE OR REPLACE FUNCTION ballot_fee_changes_apply() RETURNS trigger AS $$
BEGIN
    INSERT INTO ballot_fee_settings (id, token_fee_amount, updated_by, created_at, updated_at)
    VALUES (1, NEW.amount, NEW.updated_by, NEW.changed_at, NEW.changed_at)
    ON CONFLICT (id) DO UPDATE SET
        token_fee_amount = EXCLUDED.token_fee_amount,
        updated_by = EXCLUDED.updated_by,
        updated_at = EXCLUDED.updated_at;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ballot_fee_changes_apply ON ballot_fee_changes;
CREATE TRIGGER ballot_fee_changes_apply AFTER INSERT ON ballot_fee_changes
    FOR EACH ROW EXECUTE FUNCTION ballot_fee_changes_apply();

CREATE TABLE IF NOT EXISTS ballot_withdrawals (
    id           TEXT PRIMARY KEY,
    owner        TEXT NOT NULL DEFAULT '',
    amount       TEXT NOT NULL DEFAULT '0',
    withdrawn_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ballot_withdrawals_withdrawn_at ON ballot_withdrawals (withdrawn_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS ballot_withdrawals;
DROP TABLE IF EXISTS ballot_fee_changes;
DROP FUNCTION IF EXISTS ballot_fee_changes_apply();
DROP TABLE IF EXISTS ballot_fee_settings;
`)
				return err
			},
		},
	)
}
