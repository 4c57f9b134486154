/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the engine's persistence interfaces using SQLite. In production
  the same patterns apply to PostgreSQL with minor dialect differences.

INTERFACES IMPLEMENTED:
  commission.Store:          Ledger entries
  commission.PlanCatalog:    Plan definitions (stored as factory JSON)
  commission.RepSource:      Rep accounts
  commission.PipelineSource: Open pipeline deals for forecasting

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements are issued against transactions
  - Triggers abort any UPDATE or DELETE that reaches the table anyway
  - Corrections are new Adjustment entries
  Plans are insert-only as well: a changed plan is a new plan ID.

KEY TABLES:
  transactions:        Immutable commission ledger
  plans:               Plan definitions
  reps:                Rep accounts (quota and YTD sales are updatable)
  pipeline_deals:      Open opportunities for forecasting
  reconciliation_runs: Results of scheduled reconciliation sweeps

ORDERING:
  seq is an AUTOINCREMENT primary key, so ORDER BY ts, seq gives the ledger
  order with ties broken by insertion. ts is stored as Unix nanoseconds.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The ledger adds per-rep locking on
  top for validate-then-append.

USAGE:
  st, err := sqlite.New("./data/commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  ledger := commission.NewLedger(st)

SEE ALSO:
  - commission/store.go: Store interface
  - commission/store/memory.go: In-memory implementation for tests
  - factory/plan.go: Plan JSON format
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/factory"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	factory *factory.Factory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, factory: factory.New()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const noUpdateTrigger = `
	CREATE TRIGGER IF NOT EXISTS transactions_no_update
	BEFORE UPDATE ON transactions
	BEGIN
		SELECT RAISE(ABORT, 'transactions are append-only');
	END;`

const noDeleteTrigger = `
	CREATE TRIGGER IF NOT EXISTS transactions_no_delete
	BEFORE DELETE ON transactions
	BEGIN
		SELECT RAISE(ABORT, 'transactions are append-only');
	END;`

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		rep_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		ts INTEGER NOT NULL,
		deal_ref TEXT,
		ref_id TEXT,
		note TEXT,
		pay_date INTEGER,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		recorded_at INTEGER NOT NULL
	);

	-- Period-scoped reads per rep (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_rep_ts
		ON transactions(rep_id, ts, seq);

	-- Closure lookups
	CREATE INDEX IF NOT EXISTS idx_transactions_ref
		ON transactions(ref_id) WHERE ref_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_transactions_kind
		ON transactions(kind);

	-- Plans (insert-only; new versions get new IDs)
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Reps
	CREATE TABLE IF NOT EXISTS reps (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reps_plan
		ON reps(plan_id);

	-- Pipeline deals (forecast input)
	CREATE TABLE IF NOT EXISTS pipeline_deals (
		id TEXT PRIMARY KEY,
		rep_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		probability TEXT NOT NULL,
		expected_close TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pipeline_rep_status
		ON pipeline_deals(rep_id, status);

	-- Reconciliation Runs (for scheduled reconciliation)
	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		rep_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL,
		expected TEXT NOT NULL DEFAULT '0',
		actual TEXT NOT NULL DEFAULT '0',
		delta TEXT NOT NULL DEFAULT '0',
		entry_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		run_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_status
		ON reconciliation_runs(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reconciliation_runs_unique
		ON reconciliation_runs(rep_id, period_start, period_end);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	for _, trigger := range []string{noUpdateTrigger, noDeleteTrigger} {
		if _, err := s.db.Exec(trigger); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// LEDGER STORE (commission.Store interface)
// =============================================================================

const transactionColumns = `
	seq, id, rep_id, kind, amount, ts, deal_ref, ref_id, note,
	pay_date, idempotency_key, created_by, recorded_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append adds an entry to the ledger and returns it with Seq assigned.
func (s *Store) Append(ctx context.Context, tx commission.Transaction) (commission.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.appendTx(ctx, s.db, tx)
	if err != nil {
		return commission.Transaction{}, err
	}
	tx.Seq = seq
	return tx, nil
}

func (s *Store) appendTx(ctx context.Context, db execer, tx commission.Transaction) (int64, error) {
	query := `
		INSERT INTO transactions
		(id, rep_id, kind, amount, ts, deal_ref, ref_id, note,
		 pay_date, idempotency_key, created_by, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var payDate sql.NullInt64
	if tx.PayDate != nil {
		payDate = sql.NullInt64{Int64: tx.PayDate.UnixNano(), Valid: true}
	}
	recordedAt := tx.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	res, err := db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.RepID),
		string(tx.Kind),
		tx.Amount.String(),
		tx.Timestamp.UnixNano(),
		nullString(tx.DealRef),
		nullString(string(tx.RefID)),
		nullString(tx.Note),
		payDate,
		nullString(tx.IdempotencyKey),
		nullString(tx.CreatedBy),
		recordedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "idempotency_key") {
			return 0, commission.ErrDuplicateIdempotencyKey
		}
		return 0, fmt.Errorf("failed to append transaction: %w", err)
	}
	return res.LastInsertId()
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []commission.Transaction) ([]commission.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return nil, commission.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	out := make([]commission.Transaction, 0, len(txs))
	for _, tx := range txs {
		seq, err := s.appendTx(ctx, sqlTx, tx)
		if err != nil {
			return nil, err
		}
		tx.Seq = seq
		out = append(out, tx)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return out, nil
}

// Load returns every entry for a rep in ledger order.
func (s *Store) Load(ctx context.Context, repID commission.RepID) ([]commission.Transaction, error) {
	return s.LoadRange(ctx, repID, time.Time{}, time.Time{})
}

// LoadRange returns entries with Timestamp in [from, to). Zero bounds are open.
func (s *Store) LoadRange(ctx context.Context, repID commission.RepID, from, to time.Time) ([]commission.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + transactionColumns + " FROM transactions WHERE rep_id = ?"
	args := []any{string(repID)}
	if !from.IsZero() {
		query += " AND ts >= ?"
		args = append(args, from.UnixNano())
	}
	if !to.IsZero() {
		query += " AND ts < ?"
		args = append(args, to.UnixNano())
	}
	query += " ORDER BY ts ASC, seq ASC"

	return s.queryTransactions(ctx, query, args...)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// GetTransaction returns a specific entry by ID, or nil if none exists.
func (s *Store) GetTransaction(ctx context.Context, id commission.TransactionID) (*commission.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, err := s.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", string(id))
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// RecentTransactions returns the latest appended entries across all reps,
// newest first (for admin view).
func (s *Store) RecentTransactions(ctx context.Context, limit int) ([]commission.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions ORDER BY seq DESC LIMIT ?", limit)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]commission.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []commission.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (commission.Transaction, error) {
	var (
		tx             commission.Transaction
		id, repID      string
		kind, amount   string
		ts, recordedAt int64
		dealRef        sql.NullString
		refID          sql.NullString
		note           sql.NullString
		payDate        sql.NullInt64
		idempotencyKey sql.NullString
		createdBy      sql.NullString
	)

	err := rows.Scan(
		&tx.Seq, &id, &repID, &kind, &amount, &ts, &dealRef, &refID, &note,
		&payDate, &idempotencyKey, &createdBy, &recordedAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return tx, fmt.Errorf("transaction %s: corrupt amount %q: %w", id, amount, err)
	}

	tx.ID = commission.TransactionID(id)
	tx.RepID = commission.RepID(repID)
	tx.Kind = commission.Kind(kind)
	tx.Amount = amt
	tx.Timestamp = time.Unix(0, ts).UTC()
	tx.DealRef = dealRef.String
	tx.RefID = commission.TransactionID(refID.String)
	tx.Note = note.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.RecordedAt = time.Unix(0, recordedAt).UTC()
	if payDate.Valid {
		pd := time.Unix(0, payDate.Int64).UTC()
		tx.PayDate = &pd
	}

	return tx, nil
}

// =============================================================================
// PLAN CATALOG (commission.PlanCatalog interface)
// =============================================================================

// RegisterPlan validates and stores a plan. Registering an existing ID
// returns commission.ErrDuplicatePlan.
func (s *Store) RegisterPlan(ctx context.Context, plan commission.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	config, err := json.Marshal(s.factory.PlanToJSON(plan))
	if err != nil {
		return fmt.Errorf("failed to encode plan %s: %w", plan.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO plans (id, name, version, config_json, created_at) VALUES (?, ?, ?, ?, ?)",
		string(plan.ID), plan.Name, plan.Version, string(config),
		time.Now().UTC().Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return commission.ErrDuplicatePlan
	}
	return err
}

// Plan retrieves a plan by ID.
func (s *Store) Plan(ctx context.Context, id commission.PlanID) (commission.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var config string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM plans WHERE id = ?", string(id)).Scan(&config)
	if err == sql.ErrNoRows {
		return commission.Plan{}, commission.ErrPlanNotFound
	}
	if err != nil {
		return commission.Plan{}, err
	}
	return s.factory.ParsePlan(config)
}

// Plans returns all plans ordered by ID.
func (s *Store) Plans(ctx context.Context) ([]commission.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM plans ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []commission.Plan
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, err
		}
		plan, err := s.factory.ParsePlan(config)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// =============================================================================
// REP STORE (commission.RepSource interface)
// =============================================================================

// SaveRep inserts or updates a rep account.
func (s *Store) SaveRep(ctx context.Context, rep commission.RepAccount) error {
	config, err := json.Marshal(s.factory.RepToJSON(rep))
	if err != nil {
		return fmt.Errorf("failed to encode rep %s: %w", rep.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reps (id, name, plan_id, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			plan_id = excluded.plan_id,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, query,
		string(rep.ID), rep.Name, string(rep.PlanID), string(config), now, now,
	)
	return err
}

// Rep retrieves a rep account by ID.
func (s *Store) Rep(ctx context.Context, id commission.RepID) (commission.RepAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var config string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM reps WHERE id = ?", string(id)).Scan(&config)
	if err == sql.ErrNoRows {
		return commission.RepAccount{}, commission.ErrRepNotFound
	}
	if err != nil {
		return commission.RepAccount{}, err
	}
	return s.factory.ParseRep(config)
}

// Reps returns all rep accounts ordered by ID.
func (s *Store) Reps(ctx context.Context) ([]commission.RepAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM reps ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reps []commission.RepAccount
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, err
		}
		rep, err := s.factory.ParseRep(config)
		if err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}

// =============================================================================
// PIPELINE (commission.PipelineSource interface)
// =============================================================================

type DealStatus string

const (
	DealOpen DealStatus = "open"
	DealWon  DealStatus = "won"
	DealLost DealStatus = "lost"
)

// SaveDeal inserts or replaces an open pipeline deal.
func (s *Store) SaveDeal(ctx context.Context, d commission.PipelineDeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pipeline_deals (id, rep_id, amount, probability, expected_close, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'open', ?)
		ON CONFLICT(id) DO UPDATE SET
			rep_id = excluded.rep_id,
			amount = excluded.amount,
			probability = excluded.probability,
			expected_close = excluded.expected_close
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID, string(d.RepID), d.Amount.String(), d.Probability.String(),
		d.ExpectedClose.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// SetDealStatus marks a deal won or lost, removing it from the forecast.
func (s *Store) SetDealStatus(ctx context.Context, id string, status DealStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE pipeline_deals SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pipeline deal %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// OpenDeals returns the rep's open deals ordered by expected close.
func (s *Store) OpenDeals(ctx context.Context, repID commission.RepID) ([]commission.PipelineDeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rep_id, amount, probability, expected_close
		FROM pipeline_deals
		WHERE rep_id = ? AND status = 'open'
		ORDER BY expected_close, id
	`, string(repID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []commission.PipelineDeal
	for rows.Next() {
		var (
			d                  commission.PipelineDeal
			rep                string
			amount, prob, when string
		)
		if err := rows.Scan(&d.ID, &rep, &amount, &prob, &when); err != nil {
			return nil, err
		}
		d.RepID = commission.RepID(rep)
		if d.Amount, err = parseDecimal("deal "+d.ID+" amount", amount); err != nil {
			return nil, err
		}
		if d.Probability, err = parseDecimal("deal "+d.ID+" probability", prob); err != nil {
			return nil, err
		}
		if d.ExpectedClose, err = time.Parse(time.RFC3339, when); err != nil {
			return nil, fmt.Errorf("deal %s: corrupt expected_close %q: %w", d.ID, when, err)
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// =============================================================================
// RECONCILIATION RUNS STORE
// =============================================================================

const (
	RunBalanced = "balanced"
	RunMismatch = "mismatch"
	RunFailed   = "failed"
)

// ReconciliationRun is the stored outcome of one rep/period reconciliation.
// Re-running the same rep and period replaces the previous result.
type ReconciliationRun struct {
	ID          string
	RepID       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      string // balanced, mismatch, failed
	Expected    decimal.Decimal
	Actual      decimal.Decimal
	Delta       decimal.Decimal
	EntryCount  int
	Error       string
	RunAt       time.Time
}

// SaveReconciliationRun saves a reconciliation run.
func (s *Store) SaveReconciliationRun(ctx context.Context, r ReconciliationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reconciliation_runs (id, rep_id, period_start, period_end,
			status, expected, actual, delta, entry_count, error, run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rep_id, period_start, period_end) DO UPDATE SET
			status = excluded.status,
			expected = excluded.expected,
			actual = excluded.actual,
			delta = excluded.delta,
			entry_count = excluded.entry_count,
			error = excluded.error,
			run_at = excluded.run_at
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.RepID,
		r.PeriodStart.UTC().Format(time.RFC3339), r.PeriodEnd.UTC().Format(time.RFC3339),
		r.Status, r.Expected.String(), r.Actual.String(), r.Delta.String(),
		r.EntryCount, nullString(r.Error), r.RunAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ReconciliationRuns returns runs filtered by status ("" for all), newest first.
func (s *Store) ReconciliationRuns(ctx context.Context, status string) ([]ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, rep_id, period_start, period_end, status,
			expected, actual, delta, entry_count, error, run_at
		FROM reconciliation_runs
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY run_at DESC, rep_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ReconciliationRun
	for rows.Next() {
		var (
			r                             ReconciliationRun
			periodStart, periodEnd, runAt string
			expected, actual, delta       string
			errText                       sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &r.RepID, &periodStart, &periodEnd, &r.Status,
			&expected, &actual, &delta, &r.EntryCount, &errText, &runAt,
		); err != nil {
			return nil, err
		}

		r.PeriodStart, _ = time.Parse(time.RFC3339, periodStart)
		r.PeriodEnd, _ = time.Parse(time.RFC3339, periodEnd)
		r.RunAt, _ = time.Parse(time.RFC3339, runAt)
		if r.Expected, err = parseDecimal("run "+r.ID+" expected", expected); err != nil {
			return nil, err
		}
		if r.Actual, err = parseDecimal("run "+r.ID+" actual", actual); err != nil {
			return nil, err
		}
		if r.Delta, err = parseDecimal("run "+r.ID+" delta", delta); err != nil {
			return nil, err
		}
		r.Error = errText.String

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// parseDecimal parses a stored decimal column.
func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: corrupt decimal %q: %w", field, s, err)
	}
	return d, nil
}

// Reset clears all data (for testing/demo). The append-only triggers are
// dropped and recreated inside the same transaction.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	stmts := []string{
		"DROP TRIGGER IF EXISTS transactions_no_delete",
		"DELETE FROM transactions",
		"DELETE FROM reconciliation_runs",
		"DELETE FROM pipeline_deals",
		"DELETE FROM reps",
		"DELETE FROM plans",
		noDeleteTrigger,
	}
	for _, stmt := range stmts {
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
