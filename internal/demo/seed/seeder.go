package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

type Seeder struct {
	db  *sqlx.DB
	log *slog.Logger
}

type Summary struct {
	Persons      int `json:"persons"`
	Events       int `json:"events"`
	Battles      int `json:"battles"`
	Participants int `json:"participants"`
}

func NewSeeder(db *sqlx.DB, logger *slog.Logger) (*Seeder, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Seeder{db: db, log: logger}, nil
}

// Seed inserts dataset in one transaction. Persons that already exist are
// matched by aka and reused.
func (s *Seeder) Seed(ctx context.Context, dataset Dataset, truncate bool) (Summary, error) {
	if err := dataset.validate(); err != nil {
		return Summary{}, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if truncate {
		if _, err := tx.ExecContext(ctx, `TRUNCATE battle_participants, battles, events, persons RESTART IDENTITY CASCADE`); err != nil {
			return Summary{}, fmt.Errorf("truncate battle tables: %w", err)
		}
	}

	var summary Summary
	personIDs := make([]int64, len(dataset.Persons))
	for i, person := range dataset.Persons {
		err := tx.QueryRowxContext(ctx, `
INSERT INTO persons (aka, full_name, country, active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (aka) DO UPDATE SET full_name = EXCLUDED.full_name
RETURNING person_id`, person.AKA, nullString(person.FullName), nullString(person.Country), person.Active).Scan(&personIDs[i])
		if err != nil {
			return Summary{}, fmt.Errorf("insert person %q: %w", person.AKA, err)
		}
		summary.Persons++
	}

	eventIDs := make([]int64, len(dataset.Events))
	for i, event := range dataset.Events {
		err := tx.QueryRowxContext(ctx, `
INSERT INTO events (name, type, country, city, place, date)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING evento_id`, event.Name, nullString(event.Type), nullString(event.Country), nullString(event.City), nullString(event.Place), event.Date).Scan(&eventIDs[i])
		if err != nil {
			return Summary{}, fmt.Errorf("insert event %q: %w", event.Name, err)
		}
		summary.Events++
	}

	for _, battle := range dataset.Battles {
		var battleID int64
		err := tx.QueryRowxContext(ctx, `
INSERT INTO battles (evento_id, name, phase, winner_id)
VALUES ($1, $2, $3, $4)
RETURNING battle_id`, eventIDs[battle.Event], nullString(battle.Name), nullString(battle.Phase), personIDs[battle.Winner]).Scan(&battleID)
		if err != nil {
			return Summary{}, fmt.Errorf("insert battle %q: %w", battle.Name, err)
		}
		summary.Battles++

		for position, participant := range battle.Participants {
			_, err := tx.ExecContext(ctx, `
INSERT INTO battle_participants (battle_id, person_id, position, is_winner)
VALUES ($1, $2, $3, $4)`, battleID, personIDs[participant], position+1, participant == battle.Winner)
			if err != nil {
				return Summary{}, fmt.Errorf("insert participant for battle %q: %w", battle.Name, err)
			}
			summary.Participants++
		}
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit: %w", err)
	}
	s.log.InfoContext(ctx, "demo data seeded",
		slog.Int("persons", summary.Persons),
		slog.Int("events", summary.Events),
		slog.Int("battles", summary.Battles),
		slog.Int("participants", summary.Participants),
	)
	return summary, nil
}

func (d Dataset) validate() error {
	for _, battle := range d.Battles {
		if battle.Event < 0 || battle.Event >= len(d.Events) {
			return fmt.Errorf("battle %q references unknown event %d", battle.Name, battle.Event)
		}
		winnerFound := false
		for _, participant := range battle.Participants {
			if participant < 0 || participant >= len(d.Persons) {
				return fmt.Errorf("battle %q references unknown person %d", battle.Name, participant)
			}
			winnerFound = winnerFound || participant == battle.Winner
		}
		if !winnerFound {
			return fmt.Errorf("battle %q winner is not a participant", battle.Name)
		}
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
