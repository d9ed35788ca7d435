package grpcsvc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orderfx/internal/domain"
)

// Целые числа в google.protobuf.Value хранятся как double; больше 2^53 точность теряется.
const maxExactInteger = 1 << 53

func lookup(s *structpb.Struct, name string) (*structpb.Value, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.GetFields()[name]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

// int64Field читает идентификатор: число без дробной части или десятичную строку.
func int64Field(s *structpb.Struct, name string) (int64, bool, error) {
	v, ok := lookup(s, name)
	if !ok {
		return 0, false, nil
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > maxExactInteger {
			return 0, true, fmt.Errorf("%s must be an integer", name)
		}
		return int64(n), true, nil
	case *structpb.Value_StringValue:
		id, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s must be an integer", name)
		}
		return id, true, nil
	default:
		return 0, true, fmt.Errorf("%s must be an integer", name)
	}
}

func requiredInt64(s *structpb.Struct, name string) (int64, error) {
	id, ok, err := int64Field(s, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}
	return id, nil
}

// decimalField читает сумму: десятичную строку ("12.50") или число.
func decimalField(s *structpb.Struct, name string) (*decimal.Decimal, error) {
	v, ok := lookup(s, name)
	if !ok {
		return nil, nil
	}

	var (
		amount decimal.Decimal
		err    error
	)
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		amount, err = decimal.NewFromString(strings.TrimSpace(kind.StringValue))
	case *structpb.Value_NumberValue:
		if math.IsNaN(kind.NumberValue) || math.IsInf(kind.NumberValue, 0) {
			err = errors.New("not finite")
		} else {
			amount = decimal.NewFromFloat(kind.NumberValue)
		}
	default:
		err = errors.New("unsupported type")
	}
	if err != nil {
		return nil, fmt.Errorf("%s must be a decimal number", name)
	}
	return &amount, nil
}

func requiredDecimal(s *structpb.Struct, name string) (decimal.Decimal, error) {
	amount, err := decimalField(s, name)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if amount == nil {
		return decimal.Decimal{}, fmt.Errorf("%s is required", name)
	}
	return *amount, nil
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := lookup(s, name)
	if !ok {
		return "", nil
	}
	str, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return str.StringValue, nil
}

func structField(s *structpb.Struct, name string) (*structpb.Struct, error) {
	v, ok := lookup(s, name)
	if !ok {
		return nil, fmt.Errorf("%s is required", name)
	}
	nested, isStruct := v.GetKind().(*structpb.Value_StructValue)
	if !isStruct {
		return nil, fmt.Errorf("%s must be an object", name)
	}
	return nested.StructValue, nil
}

// orderFromStruct собирает полную замену заказа. Все поля обязательны.
func orderFromStruct(s *structpb.Struct) (domain.Order, error) {
	var (
		o   domain.Order
		err error
	)
	ids := []struct {
		name   string
		target *int64
	}{
		{"id", &o.ID},
		{"customer_id", &o.CustomerID},
		{"payment_id", &o.PaymentID},
		{"cart_id", &o.CartID},
	}
	for _, field := range ids {
		if *field.target, err = requiredInt64(s, field.name); err != nil {
			return domain.Order{}, fmt.Errorf("order.%w", err)
		}
	}
	if o.PaidPrice, err = requiredDecimal(s, "paid_price"); err != nil {
		return domain.Order{}, fmt.Errorf("order.%w", err)
	}
	if o.TotalPrice, err = requiredDecimal(s, "total_price"); err != nil {
		return domain.Order{}, fmt.Errorf("order.%w", err)
	}
	return o, nil
}

func patchFromStruct(s *structpb.Struct) (domain.OrderPatch, error) {
	var (
		patch domain.OrderPatch
		err   error
	)
	if patch.PaidPrice, err = decimalField(s, "paid_price"); err != nil {
		return domain.OrderPatch{}, err
	}
	if patch.TotalPrice, err = decimalField(s, "total_price"); err != nil {
		return domain.OrderPatch{}, err
	}
	return patch, nil
}

// viewToStruct кодирует представление заказа. Идентификаторы передаются строками,
// как int64 в каноническом JSON-отображении protobuf; суммы ровно с двумя знаками.
func viewToStruct(view domain.OrderView) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewStringValue(strconv.FormatInt(view.ID, 10)),
		"customer_id": structpb.NewStringValue(strconv.FormatInt(view.CustomerID, 10)),
		"payment_id":  structpb.NewStringValue(strconv.FormatInt(view.PaymentID, 10)),
		"cart_id":     structpb.NewStringValue(strconv.FormatInt(view.CartID, 10)),
		"paid_price":  structpb.NewStringValue(view.PaidPrice.StringFixed(domain.MoneyScale)),
		"total_price": structpb.NewStringValue(view.TotalPrice.StringFixed(domain.MoneyScale)),
		"currency":    structpb.NewStringValue(view.Currency),
		"rate":        structpb.NewStringValue(view.Rate.String()),
	}}
}

func orderResponse(view domain.OrderView) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"order": structpb.NewStructValue(viewToStruct(view)),
	}}
}

func listResponse(views []domain.OrderView) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(views))
	for _, view := range views {
		values = append(values, structpb.NewStructValue(viewToStruct(view)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"orders": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}
