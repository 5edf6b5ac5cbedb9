/*
Package sqlite provides the SQLite-backed implementation of the
engine's storage boundary.

PURPOSE:
  Holds the four disclosure record sets (allocated, expenditure,
  recommended, completed) and answers the engine's equality-filter
  queries. The store knows nothing about metrics; dates stay raw text
  because the upstream encoding is not reliably parseable in SQL.

ATOMIC DATASET SWAP:
  Refresh replaces the whole dataset. ReplaceDataset loads the new
  records into staging tables and promotes them inside a single
  transaction, so a query running concurrently with a refresh sees
  either the old dataset or the new one, never a mix.

WAL MODE:
  The database is opened with WAL so readers are not blocked while a
  refresh writes the staging tables.

SEE ALSO:
  - engine/types.go: RecordSource interface this store implements
  - ingest: produces the datasets handed to ReplaceDataset
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
)

// Store implements engine.RecordSource over a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS allocated (
		mp_name       TEXT NOT NULL,
		state_name    TEXT,
		constituency  TEXT,
		allocated_amt TEXT
	);

	CREATE TABLE IF NOT EXISTS expenditure (
		mp_name            TEXT,
		state_name         TEXT,
		vendor_name        TEXT,
		activity_name      TEXT,
		fund_disbursed_amt TEXT,
		expenditure_date   TEXT,
		work_id            TEXT
	);

	CREATE TABLE IF NOT EXISTS recommended (
		mp_name             TEXT,
		state_name          TEXT,
		activity_name       TEXT,
		work_description    TEXT,
		recommended_amount  TEXT,
		recommendation_date TEXT,
		work_id             TEXT
	);

	CREATE TABLE IF NOT EXISTS completed (
		mp_name         TEXT,
		state_name      TEXT,
		activity_name   TEXT,
		work_id         TEXT,
		actual_end_date TEXT,
		attach_id       TEXT,
		actual_amount   TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.createIndexes()
}

func (s *Store) createIndexes() error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_allocated_mp ON allocated (mp_name)`,
		`CREATE INDEX IF NOT EXISTS idx_allocated_state ON allocated (state_name)`,
		`CREATE INDEX IF NOT EXISTS idx_expenditure_mp ON expenditure (mp_name)`,
		`CREATE INDEX IF NOT EXISTS idx_expenditure_state ON expenditure (state_name)`,
		`CREATE INDEX IF NOT EXISTS idx_expenditure_vendor ON expenditure (vendor_name)`,
		`CREATE INDEX IF NOT EXISTS idx_recommended_mp ON recommended (mp_name)`,
		`CREATE INDEX IF NOT EXISTS idx_recommended_work ON recommended (work_id)`,
		`CREATE INDEX IF NOT EXISTS idx_completed_mp ON completed (mp_name)`,
		`CREATE INDEX IF NOT EXISTS idx_completed_work ON completed (work_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// RECORD SOURCE
// =============================================================================

// whereClause builds the equality predicate for the filter columns that
// exist on a record set.
func whereClause(pairs ...[2]string) (string, []any) {
	var conds []string
	var args []any
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		conds = append(conds, p[0]+" = ?")
		args = append(args, p[1])
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) Allocations(ctx context.Context, f engine.Filter) ([]engine.AllocationRecord, error) {
	where, args := whereClause([2]string{"mp_name", f.MP}, [2]string{"state_name", f.State})
	rows, err := s.db.QueryContext(ctx,
		`SELECT mp_name, state_name, constituency, allocated_amt FROM allocated`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.AllocationRecord
	for rows.Next() {
		var r engine.AllocationRecord
		var state, constituency, amt sql.NullString
		if err := rows.Scan(&r.MPName, &state, &constituency, &amt); err != nil {
			return nil, err
		}
		r.State = state.String
		r.Constituency = constituency.String
		r.Allocated = parseAmount(amt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Expenditures(ctx context.Context, f engine.Filter) ([]engine.ExpenditureRecord, error) {
	where, args := whereClause(
		[2]string{"mp_name", f.MP},
		[2]string{"state_name", f.State},
		[2]string{"vendor_name", f.Vendor},
		[2]string{"activity_name", f.Activity},
	)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mp_name, state_name, vendor_name, activity_name, fund_disbursed_amt, expenditure_date, work_id
		 FROM expenditure`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.ExpenditureRecord
	for rows.Next() {
		var r engine.ExpenditureRecord
		var mp, state, vendor, activity, amt, date, workID sql.NullString
		if err := rows.Scan(&mp, &state, &vendor, &activity, &amt, &date, &workID); err != nil {
			return nil, err
		}
		r.MPName = mp.String
		r.State = state.String
		r.Vendor = vendor.String
		r.Activity = activity.String
		r.Disbursed = parseAmount(amt)
		r.DateRaw = date.String
		r.WorkID = workID.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Recommendations(ctx context.Context, f engine.Filter) ([]engine.RecommendationRecord, error) {
	where, args := whereClause(
		[2]string{"mp_name", f.MP},
		[2]string{"state_name", f.State},
		[2]string{"activity_name", f.Activity},
	)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mp_name, state_name, activity_name, work_description, recommended_amount, recommendation_date, work_id
		 FROM recommended`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.RecommendationRecord
	for rows.Next() {
		var r engine.RecommendationRecord
		var mp, state, activity, desc, amt, date, workID sql.NullString
		if err := rows.Scan(&mp, &state, &activity, &desc, &amt, &date, &workID); err != nil {
			return nil, err
		}
		r.MPName = mp.String
		r.State = state.String
		r.Activity = activity.String
		r.Description = desc.String
		r.Recommended = parseAmount(amt)
		r.DateRaw = date.String
		r.WorkID = workID.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Completions(ctx context.Context, f engine.Filter) ([]engine.CompletionRecord, error) {
	where, args := whereClause(
		[2]string{"mp_name", f.MP},
		[2]string{"state_name", f.State},
		[2]string{"activity_name", f.Activity},
	)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mp_name, state_name, activity_name, work_id, actual_end_date, attach_id, actual_amount
		 FROM completed`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.CompletionRecord
	for rows.Next() {
		var r engine.CompletionRecord
		var mp, state, activity, workID, endDate, attachID, amt sql.NullString
		if err := rows.Scan(&mp, &state, &activity, &workID, &endDate, &attachID, &amt); err != nil {
			return nil, err
		}
		r.MPName = mp.String
		r.State = state.String
		r.Activity = activity.String
		r.WorkID = workID.String
		r.EndDateRaw = endDate.String
		r.ProofRef = attachID.String
		r.ActualAmount = parseAmount(amt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// SEARCH
// =============================================================================

// SearchMPs matches MP names and constituencies against a substring.
func (s *Store) SearchMPs(ctx context.Context, q string, limit int) ([]engine.AllocationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + q + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT mp_name, state_name, constituency, allocated_amt
		 FROM allocated
		 WHERE mp_name LIKE ? OR constituency LIKE ?
		 LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.AllocationRecord
	for rows.Next() {
		var r engine.AllocationRecord
		var state, constituency, amt sql.NullString
		if err := rows.Scan(&r.MPName, &state, &constituency, &amt); err != nil {
			return nil, err
		}
		r.State = state.String
		r.Constituency = constituency.String
		r.Allocated = parseAmount(amt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// ATOMIC DATASET SWAP
// =============================================================================

// ReplaceDataset installs a full replacement record set. The new data
// is written to staging tables first and promoted in one transaction.
func (s *Store) ReplaceDataset(ctx context.Context, ds engine.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh: %w", err)
	}
	defer tx.Rollback()

	for _, t := range []string{"allocated_staging", "expenditure_staging", "recommended_staging", "completed_staging"} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+t); err != nil {
			return err
		}
	}

	stmts := []string{
		`CREATE TABLE allocated_staging (mp_name TEXT NOT NULL, state_name TEXT, constituency TEXT, allocated_amt TEXT)`,
		`CREATE TABLE expenditure_staging (mp_name TEXT, state_name TEXT, vendor_name TEXT, activity_name TEXT, fund_disbursed_amt TEXT, expenditure_date TEXT, work_id TEXT)`,
		`CREATE TABLE recommended_staging (mp_name TEXT, state_name TEXT, activity_name TEXT, work_description TEXT, recommended_amount TEXT, recommendation_date TEXT, work_id TEXT)`,
		`CREATE TABLE completed_staging (mp_name TEXT, state_name TEXT, activity_name TEXT, work_id TEXT, actual_end_date TEXT, attach_id TEXT, actual_amount TEXT)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, a := range ds.Allocations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO allocated_staging VALUES (?, ?, ?, ?)`,
			a.MPName, a.State, a.Constituency, amountString(a.Allocated)); err != nil {
			return err
		}
	}
	for _, e := range ds.Expenditures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expenditure_staging VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.MPName, e.State, e.Vendor, e.Activity, amountString(e.Disbursed), e.DateRaw, e.WorkID); err != nil {
			return err
		}
	}
	for _, r := range ds.Recommendations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recommended_staging VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.MPName, r.State, r.Activity, r.Description, amountString(r.Recommended), r.DateRaw, r.WorkID); err != nil {
			return err
		}
	}
	for _, c := range ds.Completions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO completed_staging VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.MPName, c.State, c.Activity, c.WorkID, c.EndDateRaw, c.ProofRef, amountString(c.ActualAmount)); err != nil {
			return err
		}
	}

	// Promote: drop live tables and rename staging into place. Readers
	// on other connections observe the swap atomically at commit.
	for _, t := range []string{"allocated", "expenditure", "recommended", "completed"} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+t); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE `+t+`_staging RENAME TO `+t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh: %w", err)
	}
	return s.createIndexes()
}

// =============================================================================
// HELPERS
// =============================================================================

// parseAmount maps a raw amount cell to the engine's optional decimal.
// NULL, empty, or unparseable cells are "absent", not zero.
func parseAmount(v sql.NullString) decimal.NullDecimal {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v.String))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func amountString(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}
