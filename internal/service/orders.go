package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/pricing"
	"github.com/iliyamo/stage-ticketing/internal/queue"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

// DefaultHoldDuration is how long a PENDING order keeps its seats when no
// hold duration is configured.
const DefaultHoldDuration = 15 * time.Minute

// OrderConfig carries the tunables of the order state machine.
type OrderConfig struct {
	HoldDuration time.Duration
	Policy       pricing.Policy
}

// CreateOrderInput is a buyer's purchase intent.
type CreateOrderInput struct {
	SessionID     uint64
	Quantities    model.TierQuantities
	Customer      model.Customer
	ExchangeCodes []string
}

// OrderService drives orders through PENDING -> PAID | CANCELLED | EXPIRED.
// Each transition runs in a single store transaction together with the
// inventory and exchange code changes it implies.
type OrderService struct {
	store    repository.Store
	ledger   *Ledger
	registry *ExchangeRegistry
	policy   pricing.Policy
	hold     time.Duration
	events   EventPublisher
	log      *zap.Logger

	now           func() time.Time
	newTicketCode func() string
	newPublicRef  func() string
}

// NewOrderService wires an OrderService.  A nil events publisher drops
// events.
func NewOrderService(store repository.Store, ledger *Ledger, registry *ExchangeRegistry, cfg OrderConfig, events EventPublisher, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = NopPublisher{}
	}
	hold := cfg.HoldDuration
	if hold <= 0 {
		hold = DefaultHoldDuration
	}
	return &OrderService{
		store:         store,
		ledger:        ledger,
		registry:      registry,
		policy:        cfg.Policy,
		hold:          hold,
		events:        events,
		log:           log.Named("orders"),
		now:           time.Now,
		newTicketCode: uuid.NewString,
		newPublicRef:  uuid.NewString,
	}
}

// HoldDuration is the age after which a PENDING order may be expired.
func (s *OrderService) HoldDuration() time.Duration { return s.hold }

// Policy returns the discount policy applied at checkout.
func (s *OrderService) Policy() pricing.Policy { return s.policy }

// CreateOrder validates the purchase, prices it, redeems its exchange
// codes and reserves its seats, persisting a PENDING order.  Everything
// happens in one transaction: on any error no seat stays held and no code
// stays redeemed.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	o, _, err := s.createOrder(ctx, in, false)
	return o, err
}

// Checkout is CreateOrder for the buyer-facing flow.  An order whose total
// is zero has nothing to collect and is confirmed in the same transaction,
// so it comes back PAID with its tickets or not at all.
func (s *OrderService) Checkout(ctx context.Context, in CreateOrderInput) (*model.Order, []model.Ticket, error) {
	return s.createOrder(ctx, in, true)
}

func (s *OrderService) createOrder(ctx context.Context, in CreateOrderInput, settleFree bool) (*model.Order, []model.Ticket, error) {
	qty := in.Quantities
	if err := validateQuantities(qty); err != nil {
		return nil, nil, err
	}
	qty = qty.NonZero()
	cust := model.Customer{
		Name:  strings.TrimSpace(in.Customer.Name),
		Email: strings.TrimSpace(in.Customer.Email),
		Phone: strings.TrimSpace(in.Customer.Phone),
	}
	if cust.Email == "" {
		return nil, nil, invalid("customer.email", "is required")
	}
	if !strings.Contains(cust.Email, "@") {
		return nil, nil, invalid("customer.email", "%q is not an email address", cust.Email)
	}
	codes, err := normalizeCodes(in.ExchangeCodes)
	if err != nil {
		return nil, nil, err
	}
	if general := qty[model.TierGeneral]; len(codes) > general {
		return nil, nil, invalid("exchange_codes", "%d codes for %d general tickets", len(codes), general)
	}

	now := s.now().UTC()
	var (
		order   *model.Order
		tickets []model.Ticket
	)
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		sess, err := tx.LockSession(ctx, in.SessionID)
		if err != nil {
			return sessionLookupErr(in.SessionID, err)
		}
		if sess.SaleStatus == model.SaleNotOnSale || sess.SaleStatus == model.SaleClosed {
			return fmt.Errorf("%w: session %d is %s", ErrNotOnSale, sess.ID, sess.SaleStatus)
		}
		if !sess.SaleOpenAt(now) {
			return fmt.Errorf("%w: session %d sale window is closed", ErrNotOnSale, sess.ID)
		}
		for _, t := range model.AllTiers {
			if qty[t] > 0 && sess.Tier(t).Capacity == 0 {
				return invalid("quantities", "tier %s is not offered for this session", t)
			}
		}
		if err := s.registry.checkTx(ctx, tx, codes); err != nil {
			return err
		}

		quote, err := pricing.Compute(sess.Prices(), qty, len(codes), s.policy)
		if err != nil {
			if errors.Is(err, pricing.ErrInvalidPolicy) {
				return fmt.Errorf("pricing: %w", err)
			}
			return invalid("quantities", "%v", err)
		}

		if err := s.ledger.reserveTx(ctx, tx, sess.ID, qty); err != nil {
			return err
		}

		o := &model.Order{
			PublicRef:           s.newPublicRef(),
			SessionID:           sess.ID,
			PerformanceLabel:    sess.Label(),
			DiscountCount:       quote.DiscountedGeneralCount,
			DiscountAmountCents: quote.DiscountAmountCents,
			SubtotalCents:       quote.SubtotalCents,
			TotalCents:          quote.TotalCents,
			Customer:            cust,
			Status:              model.OrderPending,
			CreatedAt:           now,
		}
		for _, l := range quote.Lines {
			o.Items = append(o.Items, model.OrderItem{Tier: l.Tier, Quantity: l.Quantity, UnitPriceCents: l.UnitPriceCents})
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for _, c := range codes {
			if err := s.registry.redeemTx(ctx, tx, c, o.ID, now); err != nil {
				return err
			}
		}
		o.ExchangeCodes = codes
		if settleFree && o.TotalCents == 0 {
			if tickets, err = s.confirmTx(ctx, tx, o, now); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("order created",
		zap.Uint64("order_id", order.ID),
		zap.Uint64("session_id", order.SessionID),
		zap.Int("tickets", order.TicketCount()),
		zap.Int("exchange_codes", len(order.ExchangeCodes)),
		zap.Int64("total_cents", order.TotalCents),
	)
	if order.Status == model.OrderPaid {
		s.log.Info("order paid", zap.Uint64("order_id", order.ID), zap.Int("tickets", len(tickets)))
		s.publishPaid(ctx, order, tickets)
	}
	return order, tickets, nil
}

// ConfirmPayment moves a PENDING order to PAID and issues one ticket per
// unit.  Confirming a PAID order again returns the tickets issued the
// first time and changes nothing.  Any other status is an invalid state.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID uint64) (*model.Order, []model.Ticket, error) {
	now := s.now().UTC()
	var (
		order   *model.Order
		tickets []model.Ticket
		fresh   bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return orderLookupErr(orderID, err)
		}
		switch o.Status {
		case model.OrderPaid:
			order = o
			tickets, err = tx.ListTicketsByOrder(ctx, o.ID)
			return err
		case model.OrderPending:
		default:
			return &StateError{OrderID: o.ID, Status: o.Status, Op: "confirm"}
		}

		issued, err := s.confirmTx(ctx, tx, o, now)
		if err != nil {
			return err
		}
		order, tickets, fresh = o, issued, true
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if fresh {
		s.log.Info("order paid",
			zap.Uint64("order_id", order.ID),
			zap.Int("tickets", len(tickets)),
		)
		s.publishPaid(ctx, order, tickets)
	}
	return order, tickets, nil
}

// confirmTx issues the tickets of a PENDING order and marks it PAID inside
// the caller's transaction.
func (s *OrderService) confirmTx(ctx context.Context, tx repository.Tx, o *model.Order, now time.Time) ([]model.Ticket, error) {
	if err := s.registry.verifyBoundTx(ctx, tx, o.ExchangeCodes, o.ID); err != nil {
		return nil, err
	}
	issued := s.issueTickets(o, now)
	if err := tx.InsertTickets(ctx, issued); err != nil {
		return nil, fmt.Errorf("insert tickets: %w", err)
	}
	ok, err := tx.SetOrderStatus(ctx, o.ID, model.OrderPending, model.OrderPaid, now)
	if err != nil {
		return nil, fmt.Errorf("set order status: %w", err)
	}
	if !ok {
		return nil, &StateError{OrderID: o.ID, Status: o.Status, Op: "confirm"}
	}
	o.Status = model.OrderPaid
	o.PaidAt = &now
	return issued, nil
}

// issueTickets builds one ticket per purchased unit.  The first
// len(ExchangeCodes) general units are the exchanged ones.
func (s *OrderService) issueTickets(o *model.Order, now time.Time) []model.Ticket {
	qty := o.Quantities()
	exchanged := len(o.ExchangeCodes)
	out := make([]model.Ticket, 0, qty.Total())
	for _, t := range model.AllTiers {
		for i := 0; i < qty[t]; i++ {
			out = append(out, model.Ticket{
				OrderID:     o.ID,
				Tier:        t,
				Code:        s.newTicketCode(),
				IsExchanged: t == model.TierGeneral && i < exchanged,
				CreatedAt:   now,
			})
		}
	}
	return out
}

// Cancel releases a PENDING order's seats and marks it CANCELLED.  On an
// order that is already terminal it returns the order unchanged.
func (s *OrderService) Cancel(ctx context.Context, orderID uint64) (*model.Order, error) {
	return s.finish(ctx, orderID, model.OrderCancelled)
}

// Expire is Cancel for orders whose hold ran out; the order ends EXPIRED.
func (s *OrderService) Expire(ctx context.Context, orderID uint64) (*model.Order, error) {
	return s.finish(ctx, orderID, model.OrderExpired)
}

func (s *OrderService) finish(ctx context.Context, orderID uint64, to model.OrderStatus) (*model.Order, error) {
	now := s.now().UTC()
	var (
		order    *model.Order
		released bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return orderLookupErr(orderID, err)
		}
		if o.Status.Terminal() {
			order = o
			return nil
		}
		if !o.Status.CanTransition(to) {
			return &StateError{OrderID: o.ID, Status: o.Status, Op: strings.ToLower(string(to))}
		}
		if _, err := tx.LockSession(ctx, o.SessionID); err != nil {
			return sessionLookupErr(o.SessionID, err)
		}
		if err := s.ledger.releaseTx(ctx, tx, o.SessionID, o.Quantities()); err != nil {
			return err
		}
		ok, err := tx.SetOrderStatus(ctx, o.ID, o.Status, to, now)
		if err != nil {
			return fmt.Errorf("set order status: %w", err)
		}
		if !ok {
			return &StateError{OrderID: o.ID, Status: o.Status, Op: strings.ToLower(string(to))}
		}
		o.Status = to
		if to == model.OrderExpired {
			o.ExpiredAt = &now
		} else {
			o.CancelledAt = &now
		}
		order, released = o, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if released {
		s.log.Info("order released",
			zap.Uint64("order_id", order.ID),
			zap.String("status", string(order.Status)),
		)
		s.publishReleased(ctx, order, now)
	}
	return order, nil
}

// ExpireStale expires up to limit PENDING orders older than the hold
// duration at now.  It returns how many orders it expired; an order that
// was settled concurrently is skipped without error.
func (s *OrderService) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := s.store.ListStalePending(ctx, now.Add(-s.hold), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}
	expired := 0
	for _, id := range ids {
		o, err := s.Expire(ctx, id)
		if err != nil {
			s.log.Error("expire order failed", zap.Uint64("order_id", id), zap.Error(err))
			continue
		}
		if o.Status == model.OrderExpired {
			expired++
		}
	}
	return expired, nil
}

// GetOrder returns an order and its tickets.
func (s *OrderService) GetOrder(ctx context.Context, orderID uint64) (*model.Order, []model.Ticket, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, orderLookupErr(orderID, err)
	}
	tickets, err := s.store.ListTicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("list tickets: %w", err)
	}
	return o, tickets, nil
}

// GetOrderByRef is GetOrder keyed by the order's public reference, the
// only handle a buyer is given.
func (s *OrderService) GetOrderByRef(ctx context.Context, ref string) (*model.Order, []model.Ticket, error) {
	ref = strings.TrimSpace(ref)
	o, err := s.store.GetOrderByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, &NotFoundError{Entity: "order", Key: ref}
		}
		return nil, nil, fmt.Errorf("load order %s: %w", ref, err)
	}
	tickets, err := s.store.ListTicketsByOrder(ctx, o.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list tickets: %w", err)
	}
	return o, tickets, nil
}

func (s *OrderService) publishPaid(ctx context.Context, o *model.Order, tickets []model.Ticket) {
	ev := queue.OrderPaidEvent{
		EventID:          queue.NewEventID(),
		OrderID:          o.ID,
		SessionID:        o.SessionID,
		PerformanceLabel: o.PerformanceLabel,
		CustomerName:     o.Customer.Name,
		CustomerEmail:    o.Customer.Email,
		TotalCents:       o.TotalCents,
		PaidAt:           *o.PaidAt,
	}
	for _, t := range tickets {
		ev.Tickets = append(ev.Tickets, queue.TicketRef{Code: t.Code, Tier: string(t.Tier), IsExchanged: t.IsExchanged})
	}
	if err := s.events.PublishOrderPaid(ctx, ev); err != nil {
		s.log.Warn("publish order.paid failed", zap.Uint64("order_id", o.ID), zap.Error(err))
	}
}

func (s *OrderService) publishReleased(ctx context.Context, o *model.Order, at time.Time) {
	qty := make(map[string]int)
	for t, n := range o.Quantities() {
		qty[string(t)] = n
	}
	ev := queue.OrderReleasedEvent{
		EventID:    queue.NewEventID(),
		OrderID:    o.ID,
		SessionID:  o.SessionID,
		Status:     string(o.Status),
		Quantities: qty,
		ReleasedAt: at,
	}
	if err := s.events.PublishOrderReleased(ctx, ev); err != nil {
		s.log.Warn("publish order.released failed", zap.Uint64("order_id", o.ID), zap.Error(err))
	}
}

func orderLookupErr(id uint64, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Entity: "order", Key: strconv.FormatUint(id, 10)}
	}
	return fmt.Errorf("load order %d: %w", id, err)
}
