package runstate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"proppilot/internal/types"

	_ "modernc.org/sqlite"
)

// Store persists run state across restarts: the account ledger and the
// per-symbol position records the executor owns. Position mutation
// happens in the executor; this store only records what it decided.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open initializes the SQLite run-state database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run state path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			symbol TEXT PRIMARY KEY,
			side TEXT NOT NULL,
			lots REAL NOT NULL,
			entry_price REAL NOT NULL,
			current_price REAL NOT NULL,
			dca_count INTEGER NOT NULL DEFAULT 0,
			peak_profit_pct REAL NOT NULL DEFAULT 0,
			risk_budget_usd REAL NOT NULL DEFAULT 0,
			opened_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS account (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			equity REAL NOT NULL,
			balance REAL NOT NULL,
			daily_start REAL NOT NULL,
			peak_balance REAL NOT NULL,
			realized_daily_pnl REAL NOT NULL,
			open_positions INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("run state migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SavePosition upserts one position record.
func (s *Store) SavePosition(ctx context.Context, pos types.PositionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO positions
		(symbol, side, lots, entry_price, current_price, dca_count, peak_profit_pct, risk_budget_usd, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			lots = excluded.lots,
			entry_price = excluded.entry_price,
			current_price = excluded.current_price,
			dca_count = excluded.dca_count,
			peak_profit_pct = excluded.peak_profit_pct,
			risk_budget_usd = excluded.risk_budget_usd,
			opened_at = excluded.opened_at,
			updated_at = excluded.updated_at`,
		strings.ToUpper(pos.Symbol), string(pos.Side), pos.Lots, pos.EntryPrice, pos.CurrentPrice,
		pos.DCACount, pos.PeakProfitPct, pos.RiskBudgetUSD, pos.OpenedAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("saving position %s failed: %w", pos.Symbol, err)
	}
	return nil
}

// DeletePosition removes the record for a closed position.
func (s *Store) DeletePosition(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return fmt.Errorf("deleting position %s failed: %w", symbol, err)
	}
	return nil
}

// Positions returns all persisted positions keyed by symbol.
func (s *Store) Positions(ctx context.Context) (map[string]types.PositionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, side, lots, entry_price, current_price,
		dca_count, peak_profit_pct, risk_budget_usd, opened_at FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("loading positions failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.PositionSnapshot)
	for rows.Next() {
		var pos types.PositionSnapshot
		var side string
		var openedAt int64
		if err := rows.Scan(&pos.Symbol, &side, &pos.Lots, &pos.EntryPrice, &pos.CurrentPrice,
			&pos.DCACount, &pos.PeakProfitPct, &pos.RiskBudgetUSD, &openedAt); err != nil {
			return nil, err
		}
		pos.Side = types.Side(side)
		pos.OpenedAt = time.Unix(openedAt, 0)
		out[pos.Symbol] = pos
	}
	return out, rows.Err()
}

// SaveAccount upserts the singleton account row.
func (s *Store) SaveAccount(ctx context.Context, acc types.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO account
		(id, equity, balance, daily_start, peak_balance, realized_daily_pnl, open_positions, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			equity = excluded.equity,
			balance = excluded.balance,
			daily_start = excluded.daily_start,
			peak_balance = excluded.peak_balance,
			realized_daily_pnl = excluded.realized_daily_pnl,
			open_positions = excluded.open_positions,
			updated_at = excluded.updated_at`,
		acc.Equity, acc.Balance, acc.DailyStart, acc.PeakBalance,
		acc.RealizedDailyPn, acc.OpenPositions, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("saving account failed: %w", err)
	}
	return nil
}

// Account loads the persisted account state; the bool reports whether a
// prior run left one behind.
func (s *Store) Account(ctx context.Context) (types.AccountSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `SELECT equity, balance, daily_start, peak_balance,
		realized_daily_pnl, open_positions, updated_at FROM account WHERE id = 1`)
	var acc types.AccountSnapshot
	var updated int64
	err := row.Scan(&acc.Equity, &acc.Balance, &acc.DailyStart, &acc.PeakBalance,
		&acc.RealizedDailyPn, &acc.OpenPositions, &updated)
	if err == sql.ErrNoRows {
		return types.AccountSnapshot{}, false, nil
	}
	if err != nil {
		return types.AccountSnapshot{}, false, fmt.Errorf("loading account failed: %w", err)
	}
	acc.UpdatedAt = time.Unix(updated, 0)
	return acc, true, nil
}
