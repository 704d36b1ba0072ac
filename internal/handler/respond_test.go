package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/service"
)

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &service.ValidationError{Field: "quantities", Reason: "at least one ticket is required"}, http.StatusBadRequest, "validation"},
		{"sold out", &service.SoldOutError{SessionID: 1, Tier: model.TierVIP1, Requested: 2, Available: 1}, http.StatusConflict, "sold_out"},
		{"code missing", &service.CodeError{Code: "ABC", Err: service.ErrCodeNotFound}, http.StatusNotFound, "code_not_found"},
		{"code used", &service.CodeError{Code: "ABC", Err: service.ErrCodeAlreadyUsed}, http.StatusConflict, "code_already_used"},
		{"ticket used", &service.AlreadyUsedError{Code: "t"}, http.StatusConflict, "already_used"},
		{"unpaid", fmt.Errorf("check in: %w", service.ErrInvalidOrder), http.StatusConflict, "invalid_order"},
		{"not on sale", service.ErrNotOnSale, http.StatusConflict, "not_on_sale"},
		{"state", &service.StateError{OrderID: 3, Status: model.OrderCancelled, Op: "confirm"}, http.StatusConflict, "invalid_state"},
		{"not found", &service.NotFoundError{Entity: "order", Key: "9"}, http.StatusNotFound, "not_found"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
			assert.NoError(t, writeError(c, zap.NewNop(), tc.err))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"`+tc.code+`"`)
		})
	}
}

func TestWriteErrorLogsOnlyUnexpected(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_ = writeError(c, log, &service.NotFoundError{Entity: "session", Key: "1"})
	assert.Equal(t, 0, logs.Len())

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_ = writeError(c, log, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterMessage("request failed").Len())
}

func TestHealth(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
	assert.NoError(t, Health(func(context.Context) error { return errors.New("db down") })(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
	assert.NoError(t, Health(nil)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	for raw, want := range map[string]bool{"42": true, "0": false, "-1": false, "x": false} {
		c.SetParamValues(raw)
		_, ok := parseID(c, "id")
		assert.Equal(t, want, ok, raw)
	}
	assert.Equal(t, "/v1/sessions/42", sessionPath(42))
}
