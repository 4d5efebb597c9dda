// Package persistence provides SQLite storage for simulation runs: per-round
// metrics, every settled deal and per-agent snapshots.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/compute-market/internal/engine"
	"github.com/talgya/compute-market/internal/resource"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; the recorder is called from the simulator goroutine only.
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
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		seed INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rounds (
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		negotiations INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		timed_out INTEGER NOT NULL,
		violations INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		defaulted INTEGER NOT NULL,
		gpu_volume REAL NOT NULL,
		gpu_price REAL NOT NULL,
		cpu_volume REAL NOT NULL,
		cpu_price REAL NOT NULL,
		memory_volume REAL NOT NULL,
		memory_price REAL NOT NULL,
		PRIMARY KEY (run_id, round)
	);

	CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		session TEXT NOT NULL,
		buyer TEXT NOT NULL,
		seller TEXT NOT NULL,
		resource TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		status TEXT NOT NULL,
		cause TEXT NOT NULL,
		defaulter TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_snapshots (
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		agent TEXT NOT NULL,
		strategy TEXT NOT NULL,
		wealth TEXT NOT NULL,
		reputation REAL NOT NULL,
		untrusted INTEGER NOT NULL,
		deals INTEGER NOT NULL,
		holdings_json TEXT NOT NULL,
		PRIMARY KEY (run_id, round, agent)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deals_run ON deals(run_id, round);
	CREATE INDEX IF NOT EXISTS idx_snapshots_agent ON agent_snapshots(run_id, agent);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run records the rounds of one simulation run. It implements
// engine.Recorder.
type Run struct {
	db *DB
	id string
}

// BeginRun registers a run. Recording a run ID again replaces the earlier
// recording, since a seed reproduces the same run.
func (db *DB) BeginRun(id uuid.UUID, name string, seed int64, agents int) (*Run, error) {
	tx, err := db.conn.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	runID := id.String()
	for _, table := range []string{"rounds", "deals", "agent_snapshots"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return nil, fmt.Errorf("clear %s: %w", table, err)
		}
	}
	_, err = tx.Exec(
		"INSERT OR REPLACE INTO runs (id, name, seed, agents, started_at) VALUES (?, ?, ?, ?, ?)",
		runID, name, seed, agents, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("recording run", "run", runID, "name", name, "seed", seed)
	return &Run{db: db, id: runID}, nil
}

// ID returns the run ID.
func (r *Run) ID() string {
	return r.id
}

// RecordRound writes the round's metrics, deals and agent snapshots in one
// transaction.
func (r *Run) RecordRound(res engine.RoundResult) error {
	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO rounds
		(run_id, round, negotiations, accepted, rejected, timed_out, violations,
		 completed, defaulted, gpu_volume, gpu_price, cpu_volume, cpu_price,
		 memory_volume, memory_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id, res.Round, res.Negotiations, res.Accepted, res.Rejected, res.TimedOut, res.Violations,
		res.Completed, res.Defaulted,
		res.Volume[resource.GPU], res.AvgPrice[resource.GPU],
		res.Volume[resource.CPU], res.AvgPrice[resource.CPU],
		res.Volume[resource.Memory], res.AvgPrice[resource.Memory],
	)
	if err != nil {
		return fmt.Errorf("insert round %d: %w", res.Round, err)
	}

	for _, d := range res.Deals {
		_, err := tx.Exec(`INSERT INTO deals
			(id, run_id, round, session, buyer, seller, resource, quantity, unit_price,
			 status, cause, defaulter)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID.String(), r.id, d.Round, d.Session.String(), d.Buyer, d.Seller,
			d.Resource.String(), d.Quantity.String(), d.UnitPrice.String(),
			d.Status.String(), d.Cause.String(), d.Defaulter,
		)
		if err != nil {
			return fmt.Errorf("insert deal %s: %w", d.ID, err)
		}
	}

	stmt, err := tx.Preparex(`INSERT INTO agent_snapshots
		(run_id, round, agent, strategy, wealth, reputation, untrusted, deals, holdings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range res.Agents {
		holdings, err := json.Marshal(a.Holdings.Map())
		if err != nil {
			return fmt.Errorf("encode holdings of %s: %w", a.ID, err)
		}
		untrusted := 0
		if a.Untrusted {
			untrusted = 1
		}
		if _, err := stmt.Exec(
			r.id, res.Round, a.ID, a.Strategy, a.Wealth.String(), a.Reputation,
			untrusted, a.Deals, string(holdings),
		); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// RunRow is a stored run.
type RunRow struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Seed      int64  `db:"seed" json:"seed"`
	Agents    int    `db:"agents" json:"agents"`
	StartedAt string `db:"started_at" json:"started_at"`
}

// RoundRow is a stored round summary.
type RoundRow struct {
	Round        int     `db:"round" json:"round"`
	Negotiations int     `db:"negotiations" json:"negotiations"`
	Accepted     int     `db:"accepted" json:"accepted"`
	Rejected     int     `db:"rejected" json:"rejected"`
	TimedOut     int     `db:"timed_out" json:"timed_out"`
	Violations   int     `db:"violations" json:"violations"`
	Completed    int     `db:"completed" json:"completed"`
	Defaulted    int     `db:"defaulted" json:"defaulted"`
	GPUVolume    float64 `db:"gpu_volume" json:"gpu_volume"`
	GPUPrice     float64 `db:"gpu_price" json:"gpu_price"`
	CPUVolume    float64 `db:"cpu_volume" json:"cpu_volume"`
	CPUPrice     float64 `db:"cpu_price" json:"cpu_price"`
	MemoryVolume float64 `db:"memory_volume" json:"memory_volume"`
	MemoryPrice  float64 `db:"memory_price" json:"memory_price"`
}

// DealRow is a stored deal. Decimal amounts are kept as their exact string
// form.
type DealRow struct {
	ID        string `db:"id" json:"id"`
	Round     int    `db:"round" json:"round"`
	Session   string `db:"session" json:"session"`
	Buyer     string `db:"buyer" json:"buyer"`
	Seller    string `db:"seller" json:"seller"`
	Resource  string `db:"resource" json:"resource"`
	Quantity  string `db:"quantity" json:"quantity"`
	UnitPrice string `db:"unit_price" json:"unit_price"`
	Status    string `db:"status" json:"status"`
	Cause     string `db:"cause" json:"cause"`
	Defaulter string `db:"defaulter" json:"defaulter"`
}

// Runs lists stored runs, most recent first.
func (db *DB) Runs() ([]RunRow, error) {
	var rows []RunRow
	err := db.conn.Select(&rows, "SELECT id, name, seed, agents, started_at FROM runs ORDER BY started_at DESC, id")
	return rows, err
}

// Run looks up a stored run. It returns sql.ErrNoRows for unknown IDs.
func (db *DB) Run(id string) (RunRow, error) {
	var row RunRow
	err := db.conn.Get(&row, "SELECT id, name, seed, agents, started_at FROM runs WHERE id = ?", id)
	return row, err
}

// Rounds returns a run's round summaries in order.
func (db *DB) Rounds(runID string) ([]RoundRow, error) {
	var rows []RoundRow
	err := db.conn.Select(&rows, `SELECT round, negotiations, accepted, rejected, timed_out, violations,
		completed, defaulted, gpu_volume, gpu_price, cpu_volume, cpu_price, memory_volume, memory_price
		FROM rounds WHERE run_id = ? ORDER BY round`, runID)
	return rows, err
}

// Deals returns a run's deals in settlement order.
func (db *DB) Deals(runID string) ([]DealRow, error) {
	var rows []DealRow
	err := db.conn.Select(&rows, `SELECT id, round, session, buyer, seller, resource, quantity, unit_price,
		status, cause, defaulter
		FROM deals WHERE run_id = ? ORDER BY round, rowid`, runID)
	return rows, err
}

// ReputationSeries returns an agent's end-of-round public reputation.
func (db *DB) ReputationSeries(runID, agent string) ([]float64, error) {
	var scores []float64
	err := db.conn.Select(&scores,
		"SELECT reputation FROM agent_snapshots WHERE run_id = ? AND agent = ? ORDER BY round",
		runID, agent)
	return scores, err
}
