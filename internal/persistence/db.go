// Package persistence provides SQLite-based simulation snapshot storage.
package persistence

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/statecraft/internal/clock"
	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/industry"
	"github.com/talgya/statecraft/internal/scheduler"
	"github.com/talgya/statecraft/internal/scripted"
	"github.com/talgya/statecraft/internal/world"
)

// ErrNoSnapshot is returned by LoadSnapshot on an empty database.
var ErrNoSnapshot = errors.New("persistence: no snapshot saved")

// Metadata keys.
const (
	metaRunID     = "run_id"
	metaTick      = "tick"
	metaCalendar  = "calendar"
	metaStartDate = "start_date"
	metaClock     = "clock"
	metaSchedNow  = "scheduler_now"
	metaNextID    = "scheduler_next_id"
	metaMarket    = "market"
	metaRNG       = "rng"
	metaScripted  = "scripted"
	metaIndustry  = "industry"
)

// DB wraps a SQLite connection for simulation persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY,
		kind INTEGER NOT NULL,
		payload BLOB NOT NULL,
		due_at INTEGER NOT NULL,
		interval_minutes INTEGER NOT NULL,
		repeat_limit INTEGER NOT NULL,
		runs INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS countries (
		position INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		elapsed INTEGER NOT NULL,
		line TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_at, id);
	CREATE INDEX IF NOT EXISTS idx_reports_tick ON reports(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type taskRow struct {
	ID       int64  `db:"id"`
	Kind     int64  `db:"kind"`
	Payload  []byte `db:"payload"`
	DueAt    int64  `db:"due_at"`
	Interval int64  `db:"interval_minutes"`
	Limit    int64  `db:"repeat_limit"`
	Runs     int64  `db:"runs"`
}

func toTaskRow(r scheduler.Record) taskRow {
	return taskRow{
		ID:       int64(r.ID),
		Kind:     int64(r.Kind),
		Payload:  r.Payload,
		DueAt:    int64(r.DueAt),
		Interval: r.Interval,
		Limit:    int64(r.Limit),
		Runs:     int64(r.Runs),
	}
}

type countryRow struct {
	Position int    `db:"position"`
	Name     string `db:"name"`
	Data     string `db:"data"`
}

// SaveSnapshot replaces the stored simulation with snap in one transaction.
func (db *DB) SaveSnapshot(snap engine.Snapshot) error {
	meta, err := snapshotMeta(snap)
	if err != nil {
		return err
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"tasks", "countries"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	for _, r := range snap.Scheduler.Tasks {
		_, err := tx.NamedExec(`INSERT INTO tasks
			(id, kind, payload, due_at, interval_minutes, repeat_limit, runs)
			VALUES (:id, :kind, :payload, :due_at, :interval_minutes, :repeat_limit, :runs)`, toTaskRow(r))
		if err != nil {
			return fmt.Errorf("insert task %d: %w", r.ID, err)
		}
	}

	for i, c := range snap.Countries {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode country %s: %w", c.Name, err)
		}
		row := countryRow{Position: i, Name: c.Name, Data: string(data)}
		if _, err := tx.NamedExec("INSERT INTO countries (position, name, data) VALUES (:position, :name, :data)", row); err != nil {
			return fmt.Errorf("insert country %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("snapshot saved", "run", snap.RunID, "tick", snap.Tick,
		"elapsed", snap.Clock.Elapsed, "tasks", len(snap.Scheduler.Tasks), "countries", len(snap.Countries))
	return nil
}

func snapshotMeta(snap engine.Snapshot) (map[string]string, error) {
	clk, err := json.Marshal(snap.Clock)
	if err != nil {
		return nil, err
	}
	market, err := json.Marshal(snap.Market)
	if err != nil {
		return nil, err
	}
	trig, err := json.Marshal(snap.Scripted)
	if err != nil {
		return nil, err
	}
	ind, err := json.Marshal(snap.Industry)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		metaRunID:     snap.RunID.String(),
		metaTick:      strconv.FormatUint(snap.Tick, 10),
		metaCalendar:  snap.Calendar,
		metaStartDate: snap.StartDate,
		metaClock:     string(clk),
		metaSchedNow:  strconv.FormatUint(snap.Scheduler.Now, 10),
		metaNextID:    strconv.FormatUint(uint64(snap.Scheduler.NextID), 10),
		metaMarket:    string(market),
		metaRNG:       base64.StdEncoding.EncodeToString(snap.RNG),
		metaScripted:  string(trig),
		metaIndustry:  string(ind),
	}, nil
}

// LoadSnapshot reads the stored simulation. It returns ErrNoSnapshot when
// nothing has been saved yet.
func (db *DB) LoadSnapshot() (engine.Snapshot, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := db.conn.Select(&rows, "SELECT key, value FROM world_meta"); err != nil {
		return engine.Snapshot{}, fmt.Errorf("load meta: %w", err)
	}
	meta := make(map[string]string, len(rows))
	for _, r := range rows {
		meta[r.Key] = r.Value
	}
	if _, ok := meta[metaRunID]; !ok {
		return engine.Snapshot{}, ErrNoSnapshot
	}

	var snap engine.Snapshot
	var err error
	if snap.RunID, err = uuid.Parse(meta[metaRunID]); err != nil {
		return snap, fmt.Errorf("load run id: %w", err)
	}
	if snap.Tick, err = strconv.ParseUint(meta[metaTick], 10, 64); err != nil {
		return snap, fmt.Errorf("load tick: %w", err)
	}
	snap.Calendar = meta[metaCalendar]
	snap.StartDate = meta[metaStartDate]

	var clk clock.State
	if err := json.Unmarshal([]byte(meta[metaClock]), &clk); err != nil {
		return snap, fmt.Errorf("load clock: %w", err)
	}
	snap.Clock = clk

	var market economy.CommodityMarket
	if err := json.Unmarshal([]byte(meta[metaMarket]), &market); err != nil {
		return snap, fmt.Errorf("load market: %w", err)
	}
	snap.Market = market

	if snap.RNG, err = base64.StdEncoding.DecodeString(meta[metaRNG]); err != nil {
		return snap, fmt.Errorf("load rng: %w", err)
	}

	var trig scripted.State
	if err := json.Unmarshal([]byte(meta[metaScripted]), &trig); err != nil {
		return snap, fmt.Errorf("load scripted state: %w", err)
	}
	snap.Scripted = trig

	// Databases written before sectors were tracked have no industry key.
	if raw, ok := meta[metaIndustry]; ok {
		var ind industry.Snapshot
		if err := json.Unmarshal([]byte(raw), &ind); err != nil {
			return snap, fmt.Errorf("load industry: %w", err)
		}
		snap.Industry = ind
	}

	if snap.Scheduler.Now, err = strconv.ParseUint(meta[metaSchedNow], 10, 64); err != nil {
		return snap, fmt.Errorf("load scheduler time: %w", err)
	}
	next, err := strconv.ParseUint(meta[metaNextID], 10, 64)
	if err != nil {
		return snap, fmt.Errorf("load next task id: %w", err)
	}
	snap.Scheduler.NextID = scheduler.TaskID(next)

	if err := db.conn.Select(&snap.Scheduler.Tasks,
		`SELECT id, kind, payload, due_at, interval_minutes, repeat_limit, runs
		 FROM tasks ORDER BY due_at, id`); err != nil {
		return snap, fmt.Errorf("load tasks: %w", err)
	}

	var countries []countryRow
	if err := db.conn.Select(&countries, "SELECT position, name, data FROM countries ORDER BY position"); err != nil {
		return snap, fmt.Errorf("load countries: %w", err)
	}
	for _, row := range countries {
		c := new(world.Country)
		if err := json.Unmarshal([]byte(row.Data), c); err != nil {
			return snap, fmt.Errorf("decode country %s: %w", row.Name, err)
		}
		snap.Countries = append(snap.Countries, c)
	}

	slog.Info("snapshot loaded", "run", snap.RunID, "tick", snap.Tick, "tasks", len(snap.Scheduler.Tasks))
	return snap, nil
}

// SaveReport appends a tick's report lines.
func (db *DB) SaveReport(r engine.TickReport) error {
	if len(r.Lines) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, line := range r.Lines {
		_, err := tx.Exec(
			"INSERT INTO reports (tick, elapsed, line) VALUES (?, ?, ?)",
			r.Tick, r.Elapsed, line,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReportLine is one stored report line.
type ReportLine struct {
	Tick    uint64 `db:"tick" json:"tick"`
	Elapsed uint64 `db:"elapsed" json:"elapsed"`
	Line    string `db:"line" json:"line"`
}

// RecentReports returns the most recent limit lines, oldest first.
func (db *DB) RecentReports(limit int) ([]ReportLine, error) {
	var lines []ReportLine
	err := db.conn.Select(&lines,
		`SELECT tick, elapsed, line FROM
		 (SELECT id, tick, elapsed, line FROM reports ORDER BY id DESC LIMIT ?)
		 ORDER BY id`,
		limit,
	)
	return lines, err
}

// SaveMeta stores a key-value pair outside the snapshot keys.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. The boolean is false when the key
// is absent.
func (db *DB) GetMeta(key string) (string, bool, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Reset deletes everything stored.
func (db *DB) Reset() error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"world_meta", "tasks", "countries", "reports"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("database reset")
	return nil
}

// SaveSimulation snapshots sim and stores it.
func (db *DB) SaveSimulation(sim *engine.Simulation) error {
	snap, err := sim.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return db.SaveSnapshot(snap)
}
