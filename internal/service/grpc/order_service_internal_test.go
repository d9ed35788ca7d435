package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orderfx/internal/domain"
)

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    codes.Code
		message string
	}{
		{"order not found", domain.ErrOrderNotFound, codes.NotFound, "order could not be found"},
		{"customer not found", fmt.Errorf("wrap: %w", domain.ErrCustomerNotFound), codes.NotFound, "customer could not be found"},
		{"payment not found", domain.ErrPaymentNotFound, codes.NotFound, "payment could not be found"},
		{"cart not found", domain.ErrCartNotFound, codes.NotFound, "cart could not be found"},
		{"unknown currency", &domain.UnknownCurrencyError{Code: "XYZ"}, codes.InvalidArgument, "currency type for XYZ could not be found"},
		{"upstream unavailable", fmt.Errorf("%w: quote USDEUR is missing", domain.ErrUpstreamUnavailable), codes.Unavailable, domain.ErrUpstreamUnavailable.Error()},
		{"upstream transport", fmt.Errorf("%w: http get: refused", domain.ErrUpstreamTransport), codes.Unavailable, domain.ErrUpstreamTransport.Error()},
		{"no changes", domain.ErrNoChanges, codes.FailedPrecondition, domain.ErrNoChanges.Error()},
		{"version conflict", domain.ErrOrderVersionConflict, codes.Aborted, domain.ErrOrderVersionConflict.Error()},
		{"negative amount", errors.Join(domain.ErrAmountNegative), codes.InvalidArgument, domain.ErrAmountNegative.Error()},
		{"id required", domain.ErrOrderIDRequired, codes.InvalidArgument, domain.ErrOrderIDRequired.Error()},
		{"canceled", context.Canceled, codes.Canceled, context.Canceled.Error()},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded, context.DeadlineExceeded.Error()},
		{"other", errors.New("disk on fire"), codes.Internal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := classify(tt.err)
			require.Equal(t, tt.code, code)
			require.Equal(t, tt.message, message)
		})
	}
}

func TestInt64Field(t *testing.T) {
	req := mustStruct(t, map[string]any{
		"number":   42,
		"string":   " 43 ",
		"fraction": 1.5,
		"word":     "abc",
		"flag":     true,
		"null":     nil,
	})

	id, ok, err := int64Field(req, "number")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), id)

	id, ok, err = int64Field(req, "string")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(43), id)

	for _, name := range []string{"fraction", "word", "flag"} {
		_, _, err = int64Field(req, name)
		require.EqualError(t, err, name+" must be an integer")
	}

	for _, name := range []string{"null", "missing"} {
		_, ok, err = int64Field(req, name)
		require.NoError(t, err)
		require.False(t, ok)
	}

	_, err = requiredInt64(req, "missing")
	require.EqualError(t, err, "missing is required")
}

func TestDecimalField(t *testing.T) {
	req := mustStruct(t, map[string]any{
		"text":   "10.005",
		"number": 12.5,
		"bad":    "ten",
		"list":   []any{1},
	})

	amount, err := decimalField(req, "text")
	require.NoError(t, err)
	require.True(t, amount.Equal(decimal.RequireFromString("10.005")))

	amount, err = decimalField(req, "number")
	require.NoError(t, err)
	require.True(t, amount.Equal(decimal.RequireFromString("12.5")))

	amount, err = decimalField(req, "missing")
	require.NoError(t, err)
	require.Nil(t, amount)

	_, err = decimalField(req, "bad")
	require.EqualError(t, err, "bad must be a decimal number")
	_, err = decimalField(req, "list")
	require.EqualError(t, err, "list must be a decimal number")
}

func TestOrderFromStruct(t *testing.T) {
	full := map[string]any{
		"id":          "7",
		"customer_id": 11,
		"payment_id":  21,
		"cart_id":     31,
		"paid_price":  "100.50",
		"total_price": "120",
	}

	o, err := orderFromStruct(mustStruct(t, full))
	require.NoError(t, err)
	require.Equal(t, int64(7), o.ID)
	require.Equal(t, int64(11), o.CustomerID)
	require.Equal(t, int64(21), o.PaymentID)
	require.Equal(t, int64(31), o.CartID)
	require.Equal(t, "100.50", o.PaidPrice.StringFixed(2))
	require.Equal(t, "120.00", o.TotalPrice.StringFixed(2))

	for _, field := range []string{"id", "customer_id", "payment_id", "cart_id", "paid_price", "total_price"} {
		partial := make(map[string]any, len(full))
		for k, v := range full {
			if k != field {
				partial[k] = v
			}
		}
		_, err := orderFromStruct(mustStruct(t, partial))
		require.EqualError(t, err, "order."+field+" is required")
	}
}

func TestPatchFromStruct(t *testing.T) {
	patch, err := patchFromStruct(mustStruct(t, map[string]any{"order_id": 1, "paid_price": "5"}))
	require.NoError(t, err)
	require.NotNil(t, patch.PaidPrice)
	require.Nil(t, patch.TotalPrice)

	_, err = patchFromStruct(mustStruct(t, map[string]any{"total_price": "x"}))
	require.EqualError(t, err, "total_price must be a decimal number")
}

func TestViewToStruct(t *testing.T) {
	view := domain.OrderView{
		ID:         9007199254740993,
		CustomerID: 1,
		PaymentID:  2,
		CartID:     3,
		PaidPrice:  decimal.RequireFromString("92.3"),
		TotalPrice: decimal.RequireFromString("0"),
		Currency:   "EUR",
		Rate:       decimal.RequireFromString("0.923"),
	}

	got := viewToStruct(view).AsMap()
	require.Equal(t, "9007199254740993", got["id"])
	require.Equal(t, "92.30", got["paid_price"])
	require.Equal(t, "0.00", got["total_price"])
	require.Equal(t, "EUR", got["currency"])
	require.Equal(t, "0.923", got["rate"])
}
