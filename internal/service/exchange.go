package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

const (
	// codeAlphabet leaves out 0/O and 1/I so codes survive being read
	// aloud or copied from print.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 10

	maxGenerateAttempts = 20
	maxGenerateBatch    = 1000
)

// CodeStatus is the result of validating one submitted code.
type CodeStatus struct {
	Input       string `json:"input"`
	Code        string `json:"code"`
	Valid       bool   `json:"valid"`
	AlreadyUsed bool   `json:"already_used"`
}

// ExchangeRegistry owns the one-time exchange codes.
type ExchangeRegistry struct {
	store    repository.Store
	log      *zap.Logger
	now      func() time.Time
	generate func() (string, error)
}

// NewExchangeRegistry returns a registry over store.
func NewExchangeRegistry(store repository.Store, log *zap.Logger) *ExchangeRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExchangeRegistry{store: store, log: log.Named("exchange"), now: time.Now, generate: randomCode}
}

// NormalizeCode trims the code, drops inner whitespace and upper-cases it.
func NormalizeCode(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
}

// normalizeCodes normalizes a submitted list, rejecting empty entries and
// repeats of the same code.
func normalizeCodes(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		c := NormalizeCode(r)
		if c == "" {
			return nil, invalid("exchange_codes", "entry %d is empty", i)
		}
		if seen[c] {
			return nil, invalid("exchange_codes", "code %s submitted more than once", c)
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// ValidateBatch reports, for each submitted code, whether it exists and
// whether it has been used.  Nothing is reserved or changed.
func (r *ExchangeRegistry) ValidateBatch(ctx context.Context, codes []string) ([]CodeStatus, error) {
	norm := make([]string, len(codes))
	lookup := make([]string, 0, len(codes))
	for i, c := range codes {
		norm[i] = NormalizeCode(c)
		if norm[i] != "" {
			lookup = append(lookup, norm[i])
		}
	}
	found, err := r.store.FindExchangeCodes(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("find exchange codes: %w", err)
	}
	out := make([]CodeStatus, len(codes))
	for i, c := range codes {
		st := CodeStatus{Input: c, Code: norm[i]}
		if ec, ok := found[norm[i]]; ok {
			st.AlreadyUsed = ec.IsUsed
			st.Valid = !ec.IsUsed
		}
		out[i] = st
	}
	return out, nil
}

// checkTx fails fast on unknown or used codes before inventory is touched.
// redeemTx still re-checks under the row guard.
func (r *ExchangeRegistry) checkTx(ctx context.Context, tx repository.Tx, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	found, err := tx.FindExchangeCodes(ctx, codes)
	if err != nil {
		return fmt.Errorf("find exchange codes: %w", err)
	}
	for _, c := range codes {
		ec, ok := found[c]
		if !ok {
			return &CodeError{Code: c, Err: ErrCodeNotFound}
		}
		if ec.IsUsed {
			return &CodeError{Code: c, Err: ErrCodeAlreadyUsed}
		}
	}
	return nil
}

// redeemTx binds code to orderID.  Of concurrent redemptions of the same
// code exactly one succeeds; the rest see ErrCodeAlreadyUsed.
func (r *ExchangeRegistry) redeemTx(ctx context.Context, tx repository.Tx, code string, orderID uint64, at time.Time) error {
	ok, err := tx.RedeemExchangeCode(ctx, code, orderID, at)
	if errors.Is(err, repository.ErrNotFound) {
		return &CodeError{Code: code, Err: ErrCodeNotFound}
	}
	if err != nil {
		return fmt.Errorf("redeem %s: %w", code, err)
	}
	if !ok {
		return &CodeError{Code: code, Err: ErrCodeAlreadyUsed}
	}
	return nil
}

// verifyBoundTx checks that every code is used and bound to orderID.
func (r *ExchangeRegistry) verifyBoundTx(ctx context.Context, tx repository.Tx, codes []string, orderID uint64) error {
	if len(codes) == 0 {
		return nil
	}
	found, err := tx.FindExchangeCodes(ctx, codes)
	if err != nil {
		return fmt.Errorf("find exchange codes: %w", err)
	}
	for _, c := range codes {
		ec, ok := found[c]
		if !ok {
			return &CodeError{Code: c, Err: ErrCodeNotFound}
		}
		if !ec.IsUsed || ec.OrderID == nil || *ec.OrderID != orderID {
			return &CodeError{Code: c, Err: ErrCodeAlreadyUsed}
		}
	}
	return nil
}

// GenerateBatch creates count fresh codes tagged with tag.  Every code is
// regenerated until it collides with neither the store nor the batch;
// after maxGenerateAttempts tries for one code it gives up with
// ErrCodeSpaceExhausted and nothing is inserted.
func (r *ExchangeRegistry) GenerateBatch(ctx context.Context, count int, tag string) ([]model.ExchangeCode, error) {
	if count <= 0 || count > maxGenerateBatch {
		return nil, invalid("count", "must be between 1 and %d", maxGenerateBatch)
	}
	tag = strings.TrimSpace(tag)
	if len(tag) > 64 {
		return nil, invalid("tag", "must be at most 64 characters")
	}
	now := r.now().UTC()
	var out []model.ExchangeCode
	err := r.store.WithTx(ctx, func(tx repository.Tx) error {
		out = make([]model.ExchangeCode, 0, count)
		batch := make(map[string]bool, count)
		for len(out) < count {
			code, err := r.uniqueCode(ctx, tx, batch)
			if err != nil {
				return err
			}
			batch[code] = true
			out = append(out, model.ExchangeCode{Code: code, Tag: tag, CreatedAt: now})
		}
		if err := tx.InsertExchangeCodes(ctx, out); err != nil {
			return fmt.Errorf("insert exchange codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("exchange codes generated", zap.Int("count", len(out)), zap.String("tag", tag))
	return out, nil
}

func (r *ExchangeRegistry) uniqueCode(ctx context.Context, tx repository.Tx, batch map[string]bool) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := r.generate()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		if batch[code] {
			continue
		}
		found, err := tx.FindExchangeCodes(ctx, []string{code})
		if err != nil {
			return "", fmt.Errorf("find exchange codes: %w", err)
		}
		if _, taken := found[code]; !taken {
			return code, nil
		}
	}
	r.log.Error("exchange code space exhausted", zap.Int("attempts", maxGenerateAttempts))
	return "", ErrCodeSpaceExhausted
}

// randomCode draws codeLength symbols from codeAlphabet using crypto/rand.
// The alphabet has 32 symbols so masking a byte keeps the draw uniform.
func randomCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[b[i]&31]
	}
	return string(b), nil
}
