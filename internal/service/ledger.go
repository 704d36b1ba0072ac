package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

// ReservationToken identifies seats held by a successful Reserve.  Passing
// the same quantities to Release gives them back.
type ReservationToken struct {
	SessionID  uint64
	Quantities model.TierQuantities
	ReservedAt time.Time
}

// Ledger guards sold <= capacity for every tier of every session.  A
// reservation increments each requested tier with a guarded update inside
// one transaction; if any tier fails, the transaction rolls back and no
// tier keeps its increment.
type Ledger struct {
	store repository.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewLedger returns a Ledger over store.
func NewLedger(store repository.Store, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, log: log.Named("ledger"), now: time.Now}
}

// Reserve holds qty seats in the session.  It returns a *SoldOutError
// naming the first insufficient tier, in model.AllTiers order, when the
// session cannot satisfy every tier.
func (l *Ledger) Reserve(ctx context.Context, sessionID uint64, qty model.TierQuantities) (ReservationToken, error) {
	if err := validateQuantities(qty); err != nil {
		return ReservationToken{}, err
	}
	err := l.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockSession(ctx, sessionID); err != nil {
			return sessionLookupErr(sessionID, err)
		}
		return l.reserveTx(ctx, tx, sessionID, qty)
	})
	if err != nil {
		return ReservationToken{}, err
	}
	return ReservationToken{SessionID: sessionID, Quantities: qty.NonZero(), ReservedAt: l.now().UTC()}, nil
}

// Release gives back qty seats.  Releasing more than is sold in any tier
// fails with ErrLedgerUnderflow and changes nothing.
func (l *Ledger) Release(ctx context.Context, sessionID uint64, qty model.TierQuantities) error {
	if err := validateQuantities(qty); err != nil {
		return err
	}
	return l.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockSession(ctx, sessionID); err != nil {
			return sessionLookupErr(sessionID, err)
		}
		return l.releaseTx(ctx, tx, sessionID, qty)
	})
}

// reserveTx applies the reservation inside the caller's transaction.  The
// caller must hold the session row lock (LockSession) before the first tier
// update, so every writer locks the session before its tiers, and must roll
// back on error.
func (l *Ledger) reserveTx(ctx context.Context, tx repository.Tx, sessionID uint64, qty model.TierQuantities) error {
	for _, t := range model.AllTiers {
		n := qty[t]
		if n == 0 {
			continue
		}
		ok, err := tx.AddSold(ctx, sessionID, t, n)
		if err != nil {
			return fmt.Errorf("reserve %s: %w", t, err)
		}
		if ok {
			continue
		}
		s, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return sessionLookupErr(sessionID, err)
		}
		return &SoldOutError{SessionID: sessionID, Tier: t, Requested: n, Available: s.Tier(t).Available()}
	}
	return l.syncSaleStatus(ctx, tx, sessionID)
}

// releaseTx is the transactional counterpart of Release.  The same locking
// rule as reserveTx applies.
func (l *Ledger) releaseTx(ctx context.Context, tx repository.Tx, sessionID uint64, qty model.TierQuantities) error {
	for _, t := range model.AllTiers {
		n := qty[t]
		if n == 0 {
			continue
		}
		ok, err := tx.SubtractSold(ctx, sessionID, t, n)
		if err != nil {
			return fmt.Errorf("release %s: %w", t, err)
		}
		if !ok {
			l.log.Error("release exceeds sold count",
				zap.Uint64("session_id", sessionID),
				zap.String("tier", string(t)),
				zap.Int("quantity", n),
			)
			return fmt.Errorf("%w: session %d tier %s quantity %d", ErrLedgerUnderflow, sessionID, t, n)
		}
	}
	return l.syncSaleStatus(ctx, tx, sessionID)
}

// syncSaleStatus flips ON_SALE to SOLD_OUT once every offered tier is full
// and back once seats become available again.  Other statuses are set by
// staff and left alone.
func (l *Ledger) syncSaleStatus(ctx context.Context, tx repository.Tx, sessionID uint64) error {
	s, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return sessionLookupErr(sessionID, err)
	}
	full := soldOut(s)
	var from, to model.SaleStatus
	switch {
	case s.SaleStatus == model.SaleOnSale && full:
		from, to = model.SaleOnSale, model.SaleSoldOut
	case s.SaleStatus == model.SaleSoldOut && !full:
		from, to = model.SaleSoldOut, model.SaleOnSale
	default:
		return nil
	}
	if _, err := tx.SetSaleStatus(ctx, sessionID, from, to); err != nil {
		return fmt.Errorf("set sale status: %w", err)
	}
	l.log.Info("sale status changed",
		zap.Uint64("session_id", sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// soldOut reports whether s offers at least one tier and none has seats
// left.
func soldOut(s *model.Session) bool {
	offered := false
	for _, t := range model.AllTiers {
		st := s.Tier(t)
		if st.Capacity == 0 {
			continue
		}
		offered = true
		if st.Available() > 0 {
			return false
		}
	}
	return offered
}

// MaxTicketsPerOrder caps the units of one order across all tiers.
const MaxTicketsPerOrder = 20

func validateQuantities(qty model.TierQuantities) error {
	total := 0
	for t, n := range qty {
		if !t.Valid() {
			return invalid("quantities", "unknown tier %q", t)
		}
		if n < 0 {
			return invalid("quantities", "%s quantity %d is negative", t, n)
		}
		if n > MaxTicketsPerOrder {
			return invalid("quantities", "%s quantity %d exceeds %d per order", t, n, MaxTicketsPerOrder)
		}
		total += n
	}
	if total == 0 {
		return invalid("quantities", "at least one ticket is required")
	}
	if total > MaxTicketsPerOrder {
		return invalid("quantities", "%d tickets exceed %d per order", total, MaxTicketsPerOrder)
	}
	return nil
}

func sessionLookupErr(id uint64, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Entity: "session", Key: strconv.FormatUint(id, 10)}
	}
	return fmt.Errorf("load session %d: %w", id, err)
}
