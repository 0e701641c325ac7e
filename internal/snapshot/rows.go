package snapshot

import "time"

// Row types carry both db tags for sqlx and parquet tags for the writer, so
// the replica keeps the primary's column names.

type eventRow struct {
	EventoID int64      `db:"evento_id" parquet:"evento_id"`
	Name     string     `db:"name" parquet:"name"`
	Type     *string    `db:"type" parquet:"type"`
	Country  *string    `db:"country" parquet:"country"`
	City     *string    `db:"city" parquet:"city"`
	Place    *string    `db:"place" parquet:"place"`
	Date     *time.Time `db:"date" parquet:"date,timestamp(millisecond)"`
}

type personRow struct {
	PersonID int64   `db:"person_id" parquet:"person_id"`
	AKA      string  `db:"aka" parquet:"aka"`
	FullName *string `db:"full_name" parquet:"full_name"`
	Country  *string `db:"country" parquet:"country"`
	Active   bool    `db:"active" parquet:"active"`
}

type battleRow struct {
	BattleID int64   `db:"battle_id" parquet:"battle_id"`
	EventoID int64   `db:"evento_id" parquet:"evento_id"`
	Name     *string `db:"name" parquet:"name"`
	Phase    *string `db:"phase" parquet:"phase"`
	WinnerID *int64  `db:"winner_id" parquet:"winner_id"`
}

type participantRow struct {
	BattleID int64  `db:"battle_id" parquet:"battle_id"`
	PersonID *int64 `db:"person_id" parquet:"person_id"`
	Position int16  `db:"position" parquet:"position"`
	IsWinner bool   `db:"is_winner" parquet:"is_winner"`
}

var tableExports = []tableExport{
	exportTable[eventRow]("events", `SELECT evento_id, name, type, country, city, place, date FROM events ORDER BY evento_id`),
	exportTable[personRow]("persons", `SELECT person_id, aka, full_name, country, active FROM persons ORDER BY person_id`),
	exportTable[battleRow]("battles", `SELECT battle_id, evento_id, name, phase, winner_id FROM battles ORDER BY battle_id`),
	exportTable[participantRow]("battle_participants", `SELECT battle_id, person_id, position, is_winner FROM battle_participants ORDER BY battle_id, position`),
}
