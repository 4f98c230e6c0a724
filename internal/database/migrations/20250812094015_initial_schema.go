package migrations

import (
	"context"
	"fmt"

	"github.com/pulselabs/pulsevote/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		// Create tables
		models := []any{
			(*types.Poll)(nil),
			(*types.Option)(nil),
			(*types.VoteRecord)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		// The single unique index enforcing vote deduplication: slot is the
		// option id for multi-choice polls and a fixed value for single-choice
		// polls, so a conflicting concurrent insert always loses the race here.
		indexes := []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_dedup
				ON vote_records (poll_id, voter_key, slot)`,
			`CREATE INDEX IF NOT EXISTS idx_votes_poll_created
				ON vote_records (poll_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_votes_voter
				ON vote_records (poll_id, voter_key)`,
			`CREATE INDEX IF NOT EXISTS idx_options_poll
				ON options (poll_id, position)`,
			`CREATE INDEX IF NOT EXISTS idx_polls_active
				ON polls (is_active, created_at DESC)`,
		}

		for _, index := range indexes {
			if _, err := db.NewRaw(index).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		// Counters must never go negative
		constraints := []string{
			`ALTER TABLE options ADD CONSTRAINT options_vote_count_non_negative
				CHECK (vote_count >= 0) NOT VALID`,
			`ALTER TABLE polls ADD CONSTRAINT polls_total_votes_non_negative
				CHECK (total_votes >= 0) NOT VALID`,
		}

		for _, constraint := range constraints {
			if _, err := db.NewRaw(constraint).Exec(ctx); err != nil {
				return fmt.Errorf("failed to add constraint: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{"vote_records", "options", "polls"}
		for _, table := range tables {
			if _, err := db.NewRaw("DROP TABLE IF EXISTS ? CASCADE", bun.Ident(table)).Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		return nil
	})
}
