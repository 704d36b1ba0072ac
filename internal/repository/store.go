package repository

import (
	"context"
	"time"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

// Reader is the read side shared by a Store and its transactions.  Missing
// rows are reported as ErrNotFound.
type Reader interface {
	GetSession(ctx context.Context, id uint64) (*model.Session, error)
	GetOrder(ctx context.Context, id uint64) (*model.Order, error)
	GetOrderByRef(ctx context.Context, ref string) (*model.Order, error)
	ListTicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error)
	// FindExchangeCodes returns the known codes among the given ones, keyed
	// by code.  Unknown codes are simply absent.
	FindExchangeCodes(ctx context.Context, codes []string) (map[string]model.ExchangeCode, error)
}

// Tx is one all-or-nothing unit of work.  Guarded updates return false
// instead of an error when their guard condition does not hold.
type Tx interface {
	Reader

	// LockSession and LockOrder read a row and hold it until the
	// transaction ends.
	LockSession(ctx context.Context, id uint64) (*model.Session, error)
	LockOrder(ctx context.Context, id uint64) (*model.Order, error)

	// AddSold increments sold by n only if sold+n <= capacity.
	AddSold(ctx context.Context, sessionID uint64, tier model.Tier, n int) (bool, error)
	// SubtractSold decrements sold by n only if sold >= n.
	SubtractSold(ctx context.Context, sessionID uint64, tier model.Tier, n int) (bool, error)
	SetSaleStatus(ctx context.Context, sessionID uint64, from, to model.SaleStatus) (bool, error)

	InsertSession(ctx context.Context, s *model.Session) error
	UpdateSessionInfo(ctx context.Context, s *model.Session) error
	// SetTier creates or updates a tier; it refuses (false) a capacity
	// below the tier's current sold count.
	SetTier(ctx context.Context, sessionID uint64, tier model.Tier, capacity int, priceCents int64) (bool, error)

	InsertOrder(ctx context.Context, o *model.Order) error
	SetOrderStatus(ctx context.Context, id uint64, from, to model.OrderStatus, at time.Time) (bool, error)

	// RedeemExchangeCode binds an unused code to an order.  It returns
	// ErrNotFound for unknown codes and false when the code is
	// already used.
	RedeemExchangeCode(ctx context.Context, code string, orderID uint64, at time.Time) (bool, error)
	InsertExchangeCodes(ctx context.Context, codes []model.ExchangeCode) error

	InsertTickets(ctx context.Context, tickets []model.Ticket) error
	// MarkTicketUsed flips is_used only if it is still false.
	MarkTicketUsed(ctx context.Context, ticketID uint64, at time.Time) (bool, error)
}

// Store is the persistence boundary of the ticketing core.  WithTx runs fn
// in a transaction that commits when fn returns nil and rolls back
// otherwise, leaving no partial state.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	// ListStalePending returns ids of PENDING orders created before cutoff,
	// oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}
