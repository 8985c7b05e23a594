package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trade-dashboard/internal/analytics"
)

// =====================================================
// TRADE LEDGER OPERATIONS
// =====================================================

// InsertTrades appends normalized trades to a user's ledger in one transaction.
// IDs assigned by the database are written back into trades.
func (r *Repository) InsertTrades(ctx context.Context, userID string, source analytics.Source, trades []analytics.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trades (user_id, trade_date, raw_date, symbol, trade_type, quantity, entry_price, exit_price, profit, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	batch := &pgx.Batch{}
	for i := range trades {
		t := &trades[i]
		var tradeDate *time.Time
		if t.HasDate() {
			d := t.Date
			tradeDate = &d
		}
		batch.Queue(query,
			userID, tradeDate, t.RawDate, t.Segment, t.TradeType, t.Quantity,
			t.EntryPrice, t.ExitPrice, t.Profit, string(source),
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&t.ID)
		})
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert trades: %w", err)
	}
	for i := range trades {
		trades[i].UserID = userID
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit trades: %w", err)
	}
	return nil
}

const tradeSelect = `
	SELECT t.id, t.user_id, t.trade_date, t.raw_date, t.symbol, t.trade_type, t.quantity,
		t.entry_price, t.exit_price, t.profit, COALESCE(p.client_name, '')
	FROM trades t
	LEFT JOIN user_profiles p ON p.user_id = t.user_id
`

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]analytics.TradeRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]analytics.TradeRecord, 0)
	for rows.Next() {
		var (
			t         analytics.TradeRecord
			tradeDate *time.Time
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &tradeDate, &t.RawDate, &t.Segment, &t.TradeType, &t.Quantity,
			&t.EntryPrice, &t.ExitPrice, &t.Profit, &t.ClientName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if tradeDate != nil {
			t.Date = analytics.Day(*tradeDate)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListTradesByUser returns a user's ledger, oldest first; undated trades last
func (r *Repository) ListTradesByUser(ctx context.Context, userID string) ([]analytics.TradeRecord, error) {
	return r.queryTrades(ctx, tradeSelect+`
		WHERE t.user_id = $1
		ORDER BY t.trade_date ASC NULLS LAST, t.created_at ASC
	`, userID)
}

// ListAllTrades returns every client's trades with the client name attached
func (r *Repository) ListAllTrades(ctx context.Context) ([]analytics.TradeRecord, error) {
	return r.queryTrades(ctx, tradeSelect+`
		ORDER BY t.trade_date ASC NULLS LAST, t.created_at ASC
	`)
}

// DeleteTrade removes one trade from a user's ledger
func (r *Repository) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM trades WHERE id = $1 AND user_id = $2`, tradeID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTrade rewrites the editable columns of one trade in a user's ledger.
// The trade keeps its original source.
func (r *Repository) UpdateTrade(ctx context.Context, userID string, t *analytics.TradeRecord) error {
	var tradeDate *time.Time
	if t.HasDate() {
		d := t.Date
		tradeDate = &d
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE trades
		SET trade_date = $3, raw_date = $4, symbol = $5, trade_type = $6, quantity = $7,
			entry_price = $8, exit_price = $9, profit = $10
		WHERE id = $1 AND user_id = $2
	`, t.ID, userID, tradeDate, t.RawDate, t.Segment, t.TradeType, t.Quantity, t.EntryPrice, t.ExitPrice, t.Profit)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	t.UserID = userID
	return nil
}
