// Package storage persists the fines ledger in SQLite. Session commits
// and reversals are single transactions: every scheduled write applies
// together or the whole batch fails with no partial effect.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"duchybank/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrPlayerNotFound  = errors.New("player not found")
	ErrSessionNotFound = errors.New("session not found")
)

// BalanceUpdate schedules one player's new running balance for a commit
// batch. The new total is computed by the caller from its cached roster,
// not re-fetched here.
type BalanceUpdate struct {
	PlayerID string
	NewTotal core.Money
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListPlayers returns the full roster ordered by name.
func (r *SQLiteRepository) ListPlayers(ctx context.Context) ([]core.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, total_owed_cents FROM players ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []core.Player
	for rows.Next() {
		var p core.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.TotalOwed.Cents); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return players, nil
}

func (r *SQLiteRepository) GetPlayer(ctx context.Context, id string) (core.Player, error) {
	var p core.Player
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, total_owed_cents FROM players WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.TotalOwed.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Player{}, ErrPlayerNotFound
	}
	if err != nil {
		return core.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) CreatePlayer(ctx context.Context, p core.Player) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO players (id, name, total_owed_cents) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.TotalOwed.Cents)
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}

	slog.InfoContext(ctx, "Player saved to SQLite",
		"id", p.ID, "name", p.Name, "total_owed_cents", p.TotalOwed.Cents)
	return nil
}

func (r *SQLiteRepository) RenamePlayer(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE players SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename player: %w", err)
	}
	return requireOneRow(res, ErrPlayerNotFound)
}

// SetPlayerTotal overwrites a player's running balance. Used for manual
// balance edits and the admin pay-off (new total zero).
func (r *SQLiteRepository) SetPlayerTotal(ctx context.Context, id string, total core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE players SET total_owed_cents = ? WHERE id = ?`, total.Cents, id)
	if err != nil {
		return fmt.Errorf("set player total: %w", err)
	}
	return requireOneRow(res, ErrPlayerNotFound)
}

func (r *SQLiteRepository) DeletePlayer(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	return requireOneRow(res, ErrPlayerNotFound)
}

// ListSessions returns the match history, newest first.
func (r *SQLiteRepository) ListSessions(ctx context.Context) ([]core.SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, timestamp_ms, opponent FROM sessions ORDER BY timestamp_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []core.SessionRecord
	for rows.Next() {
		var rec core.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Opponent); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	for i := range records {
		txs, err := r.sessionTransactions(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Transactions = txs
	}
	return records, nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (core.SessionRecord, error) {
	var rec core.SessionRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, timestamp_ms, opponent FROM sessions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Timestamp, &rec.Opponent)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return core.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}

	txs, err := r.sessionTransactions(ctx, id)
	if err != nil {
		return core.SessionRecord{}, err
	}
	rec.Transactions = txs
	return rec, nil
}

func (r *SQLiteRepository) sessionTransactions(ctx context.Context, sessionID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT player_id, player_name, amount_cents, tags, is_paid_off
		 FROM session_transactions WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var tx core.Transaction
		var tags string
		if err := rows.Scan(&tx.PlayerID, &tx.PlayerName, &tx.Amount.Cents, &tags, &tx.IsPaidOff); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Tags, err = decodeTags(tags)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// CommitSession applies a finished session as one atomic batch: every
// scheduled balance update plus the new history record persist together,
// or none do. An update naming a missing player aborts the whole batch.
func (r *SQLiteRepository) CommitSession(ctx context.Context, rec core.SessionRecord, updates []BalanceUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE players SET total_owed_cents = ? WHERE id = ?`,
			u.NewTotal.Cents, u.PlayerID)
		if err != nil {
			return fmt.Errorf("update player %s: %w", u.PlayerID, err)
		}
		if err := requireOneRow(res, ErrPlayerNotFound); err != nil {
			return fmt.Errorf("update player %s: %w", u.PlayerID, err)
		}
	}

	if len(rec.Transactions) > 0 {
		if err := insertSession(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session batch: %w", err)
	}

	slog.InfoContext(ctx, "Session committed",
		"session_id", rec.ID,
		"opponent", rec.Opponent,
		"transactions", len(rec.Transactions),
		"balance_updates", len(updates))
	return nil
}

// DeleteSession reverses a historical record in one atomic batch:
// each transaction's exact amount is subtracted from the player's current
// balance, then the record is removed. Transactions whose player no
// longer exists are skipped, not errored, so the rest of the batch can
// still apply.
func (r *SQLiteRepository) DeleteSession(ctx context.Context, rec core.SessionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	for _, trans := range rec.Transactions {
		res, err := tx.ExecContext(ctx,
			`UPDATE players SET total_owed_cents = total_owed_cents - ? WHERE id = ?`,
			trans.Amount.Cents, trans.PlayerID)
		if err != nil {
			return fmt.Errorf("reverse transaction for player %s: %w", trans.PlayerID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reverse transaction for player %s: %w", trans.PlayerID, err)
		}
		if n == 0 {
			slog.InfoContext(ctx, "Skipping reversal for removed player",
				"session_id", rec.ID,
				"player_id", trans.PlayerID,
				"player_name", trans.PlayerName,
				"amount_cents", trans.Amount.Cents)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_transactions WHERE session_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("delete session transactions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, rec.ID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := requireOneRow(res, ErrSessionNotFound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}

	slog.InfoContext(ctx, "Session deleted and reversed",
		"session_id", rec.ID, "opponent", rec.Opponent)
	return nil
}

// ListUnexportedSessions returns committed sessions not yet pushed to the
// treasurer spreadsheet, oldest first.
func (r *SQLiteRepository) ListUnexportedSessions(ctx context.Context, limit int) ([]core.SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, timestamp_ms, opponent FROM sessions
		 WHERE exported = 0 ORDER BY timestamp_ms ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unexported sessions: %w", err)
	}
	defer rows.Close()

	var records []core.SessionRecord
	for rows.Next() {
		var rec core.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Opponent); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	for i := range records {
		txs, err := r.sessionTransactions(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Transactions = txs
	}
	return records, nil
}

func (r *SQLiteRepository) MarkSessionExported(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET exported = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark session exported: %w", err)
	}
	if err := requireOneRow(res, ErrSessionNotFound); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Session marked as exported", "session_id", id)
	return nil
}

func insertSession(ctx context.Context, tx *sql.Tx, rec core.SessionRecord) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, timestamp_ms, opponent) VALUES (?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.Opponent); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for seq, trans := range rec.Transactions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_transactions
			 (session_id, seq, player_id, player_name, amount_cents, tags, is_paid_off)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, seq, trans.PlayerID, trans.PlayerName,
			trans.Amount.Cents, encodeTags(trans.Tags), trans.IsPaidOff); err != nil {
			return fmt.Errorf("insert transaction %d: %w", seq, err)
		}
	}
	return nil
}

func requireOneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

func encodeTags(tags []core.Tag) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func decodeTags(s string) ([]core.Tag, error) {
	if s == "" {
		return nil, nil
	}
	return core.ParseTags(strings.Split(s, ","))
}
