package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

// FindExchangeCodes returns the known codes among codes keyed by code.
// Codes must already be normalized.
func (q queries) FindExchangeCodes(ctx context.Context, codes []string) (map[string]model.ExchangeCode, error) {
	out := make(map[string]model.ExchangeCode, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	query := `SELECT id, code, tag, is_used, used_at, order_id, created_at FROM exchange_codes WHERE code IN (` +
		placeholders(len(codes)) + `)`
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ec model.ExchangeCode
		var tag sql.NullString
		var usedAt sql.NullTime
		var orderID sql.NullInt64
		if err := rows.Scan(&ec.ID, &ec.Code, &tag, &ec.IsUsed, &usedAt, &orderID, &ec.CreatedAt); err != nil {
			return nil, err
		}
		ec.Tag = tag.String
		ec.UsedAt = nullTime(usedAt)
		if orderID.Valid {
			id := uint64(orderID.Int64)
			ec.OrderID = &id
		}
		out[ec.Code] = ec
	}
	return out, rows.Err()
}

// RedeemExchangeCode binds an unused code to orderID.  The conditional
// update makes concurrent redemptions of one code serialize on its row;
// only the first sees true.
func (q queries) RedeemExchangeCode(ctx context.Context, code string, orderID uint64, at time.Time) (bool, error) {
	const stmt = `UPDATE exchange_codes SET is_used = 1, used_at = ?, order_id = ? WHERE code = ? AND is_used = 0`
	res, err := q.db.ExecContext(ctx, stmt, at.UTC(), orderID, code)
	if err != nil {
		return false, err
	}
	ok, err := affectedOne(res)
	if err != nil || ok {
		return ok, err
	}
	var one int
	err = q.db.QueryRowContext(ctx, `SELECT 1 FROM exchange_codes WHERE code = ?`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// InsertExchangeCodes inserts a batch of fresh codes.  A duplicate code
// anywhere in the batch fails the whole statement with ErrConflict.
func (q queries) InsertExchangeCodes(ctx context.Context, codes []model.ExchangeCode) error {
	if len(codes) == 0 {
		return nil
	}
	query := `INSERT INTO exchange_codes (code, tag, is_used, created_at) VALUES `
	args := make([]any, 0, len(codes)*3)
	for i, c := range codes {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, 0, ?)"
		var tag any
		if c.Tag != "" {
			tag = c.Tag
		}
		args = append(args, c.Code, tag, c.CreatedAt.UTC())
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}
