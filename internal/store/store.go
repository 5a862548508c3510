// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/ember/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const playerStatsRowID = 1

// Store wraps SQLite access for sessions, deaths and characters.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes the monitor, presence and HTTP writers.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, now: time.Now}
	if err := applyMigrations(context.Background(), db); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreateCharacter returns the id of the (name, class) character,
// inserting it on first sight.
func (s *Store) GetOrCreateCharacter(ctx context.Context, name string, classID int) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("character name is empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM characters WHERE name = ? AND class_id = ?`, name, classID,
	).Scan(&id)
	switch {
	case err == nil:
		err = tx.Commit()
		return id, err
	case !errors.Is(err, sql.ErrNoRows):
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO characters (name, class_id, created_at) VALUES (?, ?, ?)`,
		name, classID, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetCharacter returns one character by id.
func (s *Store) GetCharacter(ctx context.Context, id int64) (model.Character, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, class_id, created_at FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Character{}, ErrNotFound
	}
	return c, err
}

// ListCharacters returns all characters ordered by id.
func (s *Store) ListCharacters(ctx context.Context) ([]model.Character, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, class_id, created_at FROM characters ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row scanner) (model.Character, error) {
	var c model.Character
	var createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.ClassID, &createdAt); err != nil {
		return model.Character{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Character{}, err
	}
	c.CreatedAt = parsed
	return c, nil
}

// InsertSession stores a closed session. SessionDeaths and DeathsPerHour are
// derived from the counters and duration, never taken from the caller.
func (s *Store) InsertSession(ctx context.Context, session model.Session) (int64, error) {
	sessionDeaths := session.EndingDeaths - session.StartingDeaths
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (start_time, end_time, duration_ms, starting_deaths, ending_deaths, session_deaths, deaths_per_hour, character_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.StartedAt.UTC().Format(time.RFC3339Nano),
		session.EndedAt.UTC().Format(time.RFC3339Nano),
		session.DurationMs,
		session.StartingDeaths,
		session.EndingDeaths,
		sessionDeaths,
		model.DeathsPerHour(sessionDeaths, session.DurationMs),
		nullID(session.CharacterID),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.Session, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.CharacterID > 0 {
		clauses = append(clauses, "character_id = ?")
		args = append(args, filter.CharacterID)
	}
	query := fmt.Sprintf(`SELECT id, start_time, end_time, duration_ms, starting_deaths, ending_deaths, session_deaths, deaths_per_hour, character_id
		FROM sessions
		WHERE %s
		ORDER BY id DESC`, strings.Join(clauses, " AND "))
	if filter.Last > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Last)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.Session
	for rows.Next() {
		var ses model.Session
		var startedAt, endedAt string
		var characterID sql.NullInt64
		if err := rows.Scan(&ses.ID, &startedAt, &endedAt, &ses.DurationMs, &ses.StartingDeaths,
			&ses.EndingDeaths, &ses.SessionDeaths, &ses.DeathsPerHour, &characterID); err != nil {
			return nil, err
		}
		if ses.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if ses.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		ses.CharacterID = characterID.Int64
		sessions = append(sessions, ses)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// InsertDeath stores one death event.
func (s *Store) InsertDeath(ctx context.Context, death model.Death) (int64, error) {
	at := death.At
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deaths (zone_id, zone_name, character_id, timestamp, is_boss_death) VALUES (?, ?, ?, ?, ?)`,
		death.ZoneID, death.ZoneName, nullID(death.CharacterID), at.UTC().Format(time.RFC3339Nano), death.IsBossDeath,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListDeaths returns deaths newest first; characterID 0 means all characters.
func (s *Store) ListDeaths(ctx context.Context, characterID int64) ([]model.Death, error) {
	query := `SELECT id, zone_id, zone_name, character_id, timestamp, is_boss_death FROM deaths`
	args := []any{}
	if characterID > 0 {
		query += ` WHERE character_id = ?`
		args = append(args, characterID)
	}
	query += ` ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var deaths []model.Death
	for rows.Next() {
		var d model.Death
		var charID sql.NullInt64
		var at string
		if err := rows.Scan(&d.ID, &d.ZoneID, &d.ZoneName, &charID, &at, &d.IsBossDeath); err != nil {
			return nil, err
		}
		if d.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		d.CharacterID = charID.Int64
		deaths = append(deaths, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deaths, nil
}

// DeathsByZone counts deaths per zone, most deaths first; characterID 0
// means all characters.
func (s *Store) DeathsByZone(ctx context.Context, characterID int64) ([]model.ZoneDeaths, error) {
	where := ""
	args := []any{}
	if characterID > 0 {
		where = "WHERE character_id = ?"
		args = append(args, characterID)
	}
	query := fmt.Sprintf(`SELECT zone_id, MAX(zone_name), COUNT(*) AS death_count
		FROM deaths
		%s
		GROUP BY zone_id
		ORDER BY death_count DESC, zone_id ASC`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.ZoneDeaths
	for rows.Next() {
		var z model.ZoneDeaths
		if err := rows.Scan(&z.ZoneID, &z.ZoneName, &z.Count); err != nil {
			return nil, err
		}
		result = append(result, z)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountDeaths returns the number of recorded deaths; characterID 0 means all.
func (s *Store) CountDeaths(ctx context.Context, characterID int64) (int, error) {
	query := `SELECT COUNT(*) FROM deaths`
	args := []any{}
	if characterID > 0 {
		query += ` WHERE character_id = ?`
		args = append(args, characterID)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// UpsertPlayerStats overwrites the single aggregate row.
func (s *Store) UpsertPlayerStats(ctx context.Context, ps model.PlayerStats) error {
	updated := ps.LastUpdated
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO player_stats (id, total_deaths, total_playtime_ms, last_updated) VALUES (?, ?, ?, ?)`,
		playerStatsRowID, ps.TotalDeaths, ps.TotalPlaytimeMs, updated.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetPlayerStats returns the aggregate row or ErrNotFound.
func (s *Store) GetPlayerStats(ctx context.Context) (model.PlayerStats, error) {
	var ps model.PlayerStats
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT total_deaths, total_playtime_ms, last_updated FROM player_stats WHERE id = ?`, playerStatsRowID,
	).Scan(&ps.TotalDeaths, &ps.TotalPlaytimeMs, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlayerStats{}, ErrNotFound
	}
	if err != nil {
		return model.PlayerStats{}, err
	}
	if ps.LastUpdated, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return model.PlayerStats{}, err
	}
	return ps, nil
}

// UpsertCharacterStats replaces the attribute snapshot of a character.
func (s *Store) UpsertCharacterStats(ctx context.Context, cs model.CharacterStats) error {
	if cs.CharacterID <= 0 {
		return fmt.Errorf("character id is required")
	}
	updated := cs.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO character_stats (character_id, level, vigor, attunement, endurance, vitality,
			strength, dexterity, intelligence, faith, luck, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.CharacterID, cs.Level, cs.Vigor, cs.Attunement, cs.Endurance, cs.Vitality,
		cs.Strength, cs.Dexterity, cs.Intelligence, cs.Faith, cs.Luck,
		updated.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetCharacterStats returns the snapshot for a character or ErrNotFound.
func (s *Store) GetCharacterStats(ctx context.Context, characterID int64) (model.CharacterStats, error) {
	var cs model.CharacterStats
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT character_id, level, vigor, attunement, endurance, vitality,
			strength, dexterity, intelligence, faith, luck, updated_at
		 FROM character_stats WHERE character_id = ?`, characterID,
	).Scan(&cs.CharacterID, &cs.Level, &cs.Vigor, &cs.Attunement, &cs.Endurance, &cs.Vitality,
		&cs.Strength, &cs.Dexterity, &cs.Intelligence, &cs.Faith, &cs.Luck, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CharacterStats{}, ErrNotFound
	}
	if err != nil {
		return model.CharacterStats{}, err
	}
	if cs.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return model.CharacterStats{}, err
	}
	return cs, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
