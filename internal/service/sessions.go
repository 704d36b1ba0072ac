package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

// TierInput configures one tier of a session.
type TierInput struct {
	Capacity   int   `json:"capacity"`
	PriceCents int64 `json:"price_cents"`
}

// SessionInput creates a session.
type SessionInput struct {
	Title       string                   `json:"title"`
	Venue       string                   `json:"venue"`
	StartsAt    time.Time                `json:"starts_at"`
	SaleStartAt time.Time                `json:"sale_start_at"`
	SaleEndAt   time.Time                `json:"sale_end_at"`
	SaleStatus  model.SaleStatus         `json:"sale_status"`
	Tiers       map[model.Tier]TierInput `json:"tiers"`
}

// SessionPatch changes selected fields of a session.  Nil fields are left
// alone.
type SessionPatch struct {
	Title       *string                  `json:"title"`
	Venue       *string                  `json:"venue"`
	StartsAt    *time.Time               `json:"starts_at"`
	SaleStartAt *time.Time               `json:"sale_start_at"`
	SaleEndAt   *time.Time               `json:"sale_end_at"`
	SaleStatus  *model.SaleStatus        `json:"sale_status"`
	Tiers       map[model.Tier]TierInput `json:"tiers"`
}

// TierAvailability is the public view of one tier.
type TierAvailability struct {
	Tier       model.Tier `json:"tier"`
	Capacity   int        `json:"capacity"`
	Sold       int        `json:"sold"`
	Available  int        `json:"available"`
	PriceCents int64      `json:"price_cents"`
}

// SessionView is the public view of a session.
type SessionView struct {
	ID          uint64             `json:"id"`
	Title       string             `json:"title"`
	Venue       string             `json:"venue"`
	StartsAt    time.Time          `json:"starts_at"`
	SaleStartAt time.Time          `json:"sale_start_at"`
	SaleEndAt   time.Time          `json:"sale_end_at"`
	SaleStatus  model.SaleStatus   `json:"sale_status"`
	SaleOpen    bool               `json:"sale_open"`
	Tiers       []TierAvailability `json:"tiers"`
}

// SessionService manages performance sessions and their tier setup.
type SessionService struct {
	store  repository.Store
	ledger *Ledger
	log    *zap.Logger
	now    func() time.Time
}

// NewSessionService returns a SessionService.
func NewSessionService(store repository.Store, ledger *Ledger, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{store: store, ledger: ledger, log: log.Named("sessions"), now: time.Now}
}

// CreateSession validates and stores a new session.
func (s *SessionService) CreateSession(ctx context.Context, in SessionInput) (*model.Session, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Venue = strings.TrimSpace(in.Venue)
	if in.Title == "" {
		return nil, invalid("title", "is required")
	}
	if in.SaleStatus == "" {
		in.SaleStatus = model.SaleNotOnSale
	}
	if err := checkSessionFields(in.StartsAt, in.SaleStartAt, in.SaleEndAt, in.SaleStatus); err != nil {
		return nil, err
	}
	if len(in.Tiers) == 0 {
		return nil, invalid("tiers", "at least one tier is required")
	}
	if err := checkTiers(in.Tiers); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &model.Session{
		Title:       in.Title,
		Venue:       in.Venue,
		StartsAt:    in.StartsAt.UTC(),
		SaleStartAt: in.SaleStartAt.UTC(),
		SaleEndAt:   in.SaleEndAt.UTC(),
		SaleStatus:  in.SaleStatus,
		Tiers:       make(map[model.Tier]model.SessionTier, len(in.Tiers)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for t, ti := range in.Tiers {
		sess.Tiers[t] = model.SessionTier{Capacity: ti.Capacity, PriceCents: ti.PriceCents}
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.InsertSession(ctx, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	s.log.Info("session created", zap.Uint64("session_id", sess.ID), zap.String("title", sess.Title))
	return sess, nil
}

// UpdateSession applies patch.  A tier capacity may never drop below the
// number of seats already sold in that tier.
func (s *SessionService) UpdateSession(ctx context.Context, id uint64, patch SessionPatch) (*model.Session, error) {
	if err := checkTiers(patch.Tiers); err != nil {
		return nil, err
	}
	var out *model.Session
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		sess, err := tx.LockSession(ctx, id)
		if err != nil {
			return sessionLookupErr(id, err)
		}
		if patch.Title != nil {
			sess.Title = strings.TrimSpace(*patch.Title)
			if sess.Title == "" {
				return invalid("title", "is required")
			}
		}
		if patch.Venue != nil {
			sess.Venue = strings.TrimSpace(*patch.Venue)
		}
		if patch.StartsAt != nil {
			sess.StartsAt = patch.StartsAt.UTC()
		}
		if patch.SaleStartAt != nil {
			sess.SaleStartAt = patch.SaleStartAt.UTC()
		}
		if patch.SaleEndAt != nil {
			sess.SaleEndAt = patch.SaleEndAt.UTC()
		}
		if patch.SaleStatus != nil {
			sess.SaleStatus = *patch.SaleStatus
		}
		if err := checkSessionFields(sess.StartsAt, sess.SaleStartAt, sess.SaleEndAt, sess.SaleStatus); err != nil {
			return err
		}
		sess.UpdatedAt = s.now().UTC()
		if err := tx.UpdateSessionInfo(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		for _, t := range model.AllTiers {
			ti, ok := patch.Tiers[t]
			if !ok {
				continue
			}
			set, err := tx.SetTier(ctx, id, t, ti.Capacity, ti.PriceCents)
			if err != nil {
				return fmt.Errorf("set tier %s: %w", t, err)
			}
			if !set {
				return invalid("tiers", "%s capacity %d is below %d already sold", t, ti.Capacity, sess.Tier(t).Sold)
			}
		}
		if len(patch.Tiers) > 0 {
			if err := s.ledger.syncSaleStatus(ctx, tx, id); err != nil {
				return err
			}
		}
		out, err = tx.GetSession(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("session updated", zap.Uint64("session_id", id), zap.String("sale_status", string(out.SaleStatus)))
	return out, nil
}

// GetSession returns the public availability view of a session.
func (s *SessionService) GetSession(ctx context.Context, id uint64) (*SessionView, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, sessionLookupErr(id, err)
	}
	v := &SessionView{
		ID:          sess.ID,
		Title:       sess.Title,
		Venue:       sess.Venue,
		StartsAt:    sess.StartsAt,
		SaleStartAt: sess.SaleStartAt,
		SaleEndAt:   sess.SaleEndAt,
		SaleStatus:  sess.SaleStatus,
		SaleOpen:    sess.SaleStatus == model.SaleOnSale && sess.SaleOpenAt(s.now()),
	}
	for _, t := range model.AllTiers {
		st, ok := sess.Tiers[t]
		if !ok || st.Capacity == 0 {
			continue
		}
		v.Tiers = append(v.Tiers, TierAvailability{
			Tier:       t,
			Capacity:   st.Capacity,
			Sold:       st.Sold,
			Available:  st.Available(),
			PriceCents: st.PriceCents,
		})
	}
	return v, nil
}

func checkSessionFields(startsAt, saleStart, saleEnd time.Time, status model.SaleStatus) error {
	if startsAt.IsZero() {
		return invalid("starts_at", "is required")
	}
	if saleStart.IsZero() || saleEnd.IsZero() {
		return invalid("sale_window", "sale_start_at and sale_end_at are required")
	}
	if saleEnd.Before(saleStart) {
		return invalid("sale_window", "sale_end_at is before sale_start_at")
	}
	if !status.Valid() {
		return invalid("sale_status", "unknown status %q", status)
	}
	return nil
}

func checkTiers(tiers map[model.Tier]TierInput) error {
	for t, ti := range tiers {
		if !t.Valid() {
			return invalid("tiers", "unknown tier %q", t)
		}
		if ti.Capacity < 0 {
			return invalid("tiers", "%s capacity is negative", t)
		}
		if ti.PriceCents < 0 {
			return invalid("tiers", "%s price is negative", t)
		}
	}
	return nil
}
