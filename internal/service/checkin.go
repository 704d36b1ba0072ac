package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

// CheckInResult describes an admitted ticket.
type CheckInResult struct {
	Ticket           model.Ticket `json:"ticket"`
	OrderID          uint64       `json:"order_id"`
	PerformanceLabel string       `json:"performance_label"`
	CustomerName     string       `json:"customer_name"`
}

// CheckInService admits tickets at the door.  A ticket moves from unused
// to used exactly once; every later scan reports ErrAlreadyUsed.
type CheckInService struct {
	store repository.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewCheckInService returns a CheckInService over store.
func NewCheckInService(store repository.Store, log *zap.Logger) *CheckInService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckInService{store: store, log: log.Named("checkin"), now: time.Now}
}

// CheckIn marks the ticket with the scanned code as used.
func (s *CheckInService) CheckIn(ctx context.Context, rawCode string) (*CheckInResult, error) {
	code := strings.TrimSpace(rawCode)
	if code == "" {
		return nil, invalid("code", "is required")
	}
	now := s.now().UTC()
	var res *CheckInResult
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		r, err := inspectTicket(ctx, tx, code)
		if err != nil {
			return err
		}
		ok, err := tx.MarkTicketUsed(ctx, r.Ticket.ID, now)
		if err != nil {
			return fmt.Errorf("mark ticket used: %w", err)
		}
		if !ok {
			// Lost the race to another scanner.
			return &AlreadyUsedError{Code: code}
		}
		r.Ticket.IsUsed = true
		r.Ticket.UsedAt = &now
		res = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyUsed) {
			s.log.Info("ticket scanned again", zap.String("code", code))
		}
		return nil, err
	}
	s.log.Info("ticket checked in",
		zap.Uint64("ticket_id", res.Ticket.ID),
		zap.Uint64("order_id", res.OrderID),
		zap.String("tier", string(res.Ticket.Tier)),
	)
	return res, nil
}

// Verify runs the CheckIn checks without marking the ticket.
func (s *CheckInService) Verify(ctx context.Context, rawCode string) (*CheckInResult, error) {
	code := strings.TrimSpace(rawCode)
	if code == "" {
		return nil, invalid("code", "is required")
	}
	return inspectTicket(ctx, s.store, code)
}

func inspectTicket(ctx context.Context, r repository.Reader, code string) (*CheckInResult, error) {
	t, err := r.GetTicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "ticket", Key: code}
		}
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	o, err := r.GetOrder(ctx, t.OrderID)
	if err != nil {
		return nil, orderLookupErr(t.OrderID, err)
	}
	if o.Status != model.OrderPaid {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidOrder, o.ID, o.Status)
	}
	if t.IsUsed {
		return nil, &AlreadyUsedError{Code: code, UsedAt: t.UsedAt}
	}
	return &CheckInResult{
		Ticket:           *t,
		OrderID:          o.ID,
		PerformanceLabel: o.PerformanceLabel,
		CustomerName:     o.Customer.Name,
	}, nil
}
