package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

const sessionColumns = `id, title, venue, starts_at, sale_start_at, sale_end_at, sale_status, created_at, updated_at`

// GetSession loads a session and its tiers.  It returns ErrNotFound if
// there is no matching row.
func (q queries) GetSession(ctx context.Context, id uint64) (*model.Session, error) {
	return q.getSession(ctx, id, false)
}

// LockSession is GetSession with row locks on the session and its tiers.
// Concurrent reservations against the session wait until the caller's
// transaction ends.
func (q queries) LockSession(ctx context.Context, id uint64) (*model.Session, error) {
	return q.getSession(ctx, id, true)
}

func (q queries) getSession(ctx context.Context, id uint64, lock bool) (*model.Session, error) {
	suffix := ""
	if lock {
		suffix = " FOR UPDATE"
	}
	var s model.Session
	var status string
	err := q.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM performance_sessions WHERE id = ?`+suffix, id).Scan(
		&s.ID, &s.Title, &s.Venue, &s.StartsAt, &s.SaleStartAt, &s.SaleEndAt, &status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.SaleStatus = model.SaleStatus(status)

	rows, err := q.db.QueryContext(ctx,
		`SELECT tier, capacity, sold, price_cents FROM session_tiers WHERE session_id = ? ORDER BY tier`+suffix, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	s.Tiers = make(map[model.Tier]model.SessionTier)
	for rows.Next() {
		var tier string
		var st model.SessionTier
		if err := rows.Scan(&tier, &st.Capacity, &st.Sold, &st.PriceCents); err != nil {
			return nil, err
		}
		s.Tiers[model.Tier(tier)] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

// AddSold increments a tier's sold counter by n provided the result stays
// within capacity.  The guard and the increment are one statement, so two
// callers racing for the last seats cannot both pass.
func (q queries) AddSold(ctx context.Context, sessionID uint64, tier model.Tier, n int) (bool, error) {
	const stmt = `UPDATE session_tiers SET sold = sold + ?
                  WHERE session_id = ? AND tier = ? AND sold + ? <= capacity`
	res, err := q.db.ExecContext(ctx, stmt, n, sessionID, string(tier), n)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// SubtractSold decrements a tier's sold counter by n provided it does not
// go below zero.
func (q queries) SubtractSold(ctx context.Context, sessionID uint64, tier model.Tier, n int) (bool, error) {
	const stmt = `UPDATE session_tiers SET sold = sold - ?
                  WHERE session_id = ? AND tier = ? AND sold >= ?`
	res, err := q.db.ExecContext(ctx, stmt, n, sessionID, string(tier), n)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// SetSaleStatus moves the session from one sale status to another.  It
// returns false when the session is not currently in from.
func (q queries) SetSaleStatus(ctx context.Context, sessionID uint64, from, to model.SaleStatus) (bool, error) {
	const stmt = `UPDATE performance_sessions SET sale_status = ?, updated_at = UTC_TIMESTAMP()
                  WHERE id = ? AND sale_status = ?`
	res, err := q.db.ExecContext(ctx, stmt, string(to), sessionID, string(from))
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// InsertSession inserts a session and its tiers, assigning the generated
// ID back to s.  Sold counters always start at zero.
func (q queries) InsertSession(ctx context.Context, s *model.Session) error {
	const stmt = `INSERT INTO performance_sessions (title, venue, starts_at, sale_start_at, sale_end_at, sale_status, created_at, updated_at)
                  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := q.db.ExecContext(ctx, stmt,
		s.Title, s.Venue, s.StartsAt.UTC(), s.SaleStartAt.UTC(), s.SaleEndAt.UTC(), string(s.SaleStatus), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	if len(s.Tiers) == 0 {
		return nil
	}
	query := `INSERT INTO session_tiers (session_id, tier, capacity, sold, price_cents) VALUES `
	args := make([]any, 0, len(s.Tiers)*4)
	i := 0
	for _, t := range model.AllTiers {
		st, ok := s.Tiers[t]
		if !ok {
			continue
		}
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, 0, ?)"
		args = append(args, s.ID, string(t), st.Capacity, st.PriceCents)
		st.Sold = 0
		s.Tiers[t] = st
		i++
	}
	_, err = q.db.ExecContext(ctx, query, args...)
	return err
}

// UpdateSessionInfo writes the descriptive fields, sale window and sale
// status of s.  Tier counters are untouched.
func (q queries) UpdateSessionInfo(ctx context.Context, s *model.Session) error {
	const stmt = `UPDATE performance_sessions
                  SET title = ?, venue = ?, starts_at = ?, sale_start_at = ?, sale_end_at = ?, sale_status = ?, updated_at = ?
                  WHERE id = ?`
	res, err := q.db.ExecContext(ctx, stmt,
		s.Title, s.Venue, s.StartsAt.UTC(), s.SaleStartAt.UTC(), s.SaleEndAt.UTC(), string(s.SaleStatus), s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SetTier updates capacity and price of a tier, creating the tier row when
// it does not exist yet.  A capacity below the current sold count is
// refused with false.
func (q queries) SetTier(ctx context.Context, sessionID uint64, tier model.Tier, capacity int, priceCents int64) (bool, error) {
	const upd = `UPDATE session_tiers SET capacity = ?, price_cents = ?
                 WHERE session_id = ? AND tier = ? AND sold <= ?`
	res, err := q.db.ExecContext(ctx, upd, capacity, priceCents, sessionID, string(tier), capacity)
	if err != nil {
		return false, err
	}
	if ok, err := affectedOne(res); err != nil || ok {
		return ok, err
	}
	var sold int
	err = q.db.QueryRowContext(ctx, `SELECT sold FROM session_tiers WHERE session_id = ? AND tier = ?`, sessionID, string(tier)).Scan(&sold)
	if err == nil {
		return false, nil // row exists, capacity below sold
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	const ins = `INSERT INTO session_tiers (session_id, tier, capacity, sold, price_cents) VALUES (?, ?, ?, 0, ?)`
	if _, err := q.db.ExecContext(ctx, ins, sessionID, string(tier), capacity, priceCents); err != nil {
		if isDuplicate(err) {
			return false, ErrConflict
		}
		return false, err
	}
	return true, nil
}
