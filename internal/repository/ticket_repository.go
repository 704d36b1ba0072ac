package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

const ticketColumns = `id, order_id, tier, code, is_exchanged, is_used, used_at, created_at`

// InsertTickets inserts all tickets of an order in a single statement and
// fills in the generated IDs by reading the rows back by code.
func (q queries) InsertTickets(ctx context.Context, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (order_id, tier, code, is_exchanged, is_used, created_at) VALUES `
	args := make([]any, 0, len(tickets)*5)
	codes := make([]any, 0, len(tickets))
	for i, t := range tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, 0, ?)"
		args = append(args, t.OrderID, string(t.Tier), t.Code, t.IsExchanged, t.CreatedAt.UTC())
		codes = append(codes, t.Code)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, code FROM tickets WHERE code IN (`+placeholders(len(codes))+`)`, codes...)
	if err != nil {
		return err
	}
	defer rows.Close()
	ids := make(map[string]uint64, len(tickets))
	for rows.Next() {
		var id uint64
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return err
		}
		ids[code] = id
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range tickets {
		tickets[i].ID = ids[tickets[i].Code]
	}
	return nil
}

// ListTicketsByOrder returns the tickets of an order in issue order.
func (q queries) ListTicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTicketByCode looks a ticket up by its admission code.
func (q queries) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE code = ?`, code)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// MarkTicketUsed flips is_used for a ticket that has not been used yet.
// Of several concurrent callers exactly one sees true.
func (q queries) MarkTicketUsed(ctx context.Context, ticketID uint64, at time.Time) (bool, error) {
	const stmt = `UPDATE tickets SET is_used = 1, used_at = ? WHERE id = ? AND is_used = 0`
	res, err := q.db.ExecContext(ctx, stmt, at.UTC(), ticketID)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(s scanner) (*model.Ticket, error) {
	var t model.Ticket
	var tier string
	var usedAt sql.NullTime
	if err := s.Scan(&t.ID, &t.OrderID, &tier, &t.Code, &t.IsExchanged, &t.IsUsed, &usedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Tier = model.Tier(tier)
	t.UsedAt = nullTime(usedAt)
	return &t, nil
}
