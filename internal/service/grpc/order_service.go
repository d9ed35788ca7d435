// Package grpcsvc публикует сервис заказов по gRPC.
package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/orderfx/internal/domain"
)

// OrderUseCase — операции сервиса заказов, которые нужны транспорту.
type OrderUseCase interface {
	RetrieveOrderDetailByID(ctx context.Context, id int64, currency string) (domain.OrderView, error)
	RetrieveOrderList(ctx context.Context) ([]domain.OrderView, error)
	UpdateOrder(ctx context.Context, order domain.Order) (domain.OrderView, error)
	UpdateOrderByID(ctx context.Context, id int64, patch domain.OrderPatch) (domain.OrderView, error)
}

// OrderService реализует gRPC API поверх сервиса заказов.
type OrderService struct {
	orders OrderUseCase
	logger *log.Entry
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(orders OrderUseCase, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	return &OrderService{orders: orders, logger: logger}
}

// GetOrder возвращает заказ, при наличии currency пересчитанный в эту валюту.
func (s *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredInt64(req, "order_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	target, err := stringField(req, "currency")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	view, err := s.orders.RetrieveOrderDetailByID(ctx, id, target)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder", log.Fields{"order_id": id, "currency": target})
	}
	return orderResponse(view), nil
}

// ListOrders возвращает все заказы в базовой валюте.
func (s *OrderService) ListOrders(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	views, err := s.orders.RetrieveOrderList(ctx)
	if err != nil {
		return nil, s.toStatus(err, "ListOrders", nil)
	}
	return listResponse(views), nil
}

// UpdateOrder полностью заменяет заказ.
func (s *OrderService) UpdateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	payload, err := structField(req, "order")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	order, err := orderFromStruct(payload)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	view, err := s.orders.UpdateOrder(ctx, order)
	if err != nil {
		return nil, s.toStatus(err, "UpdateOrder", log.Fields{"order_id": order.ID})
	}
	return orderResponse(view), nil
}

// PatchOrder меняет переданные суммы заказа.
func (s *OrderService) PatchOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredInt64(req, "order_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	patch, err := patchFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	view, err := s.orders.UpdateOrderByID(ctx, id, patch)
	if err != nil {
		return nil, s.toStatus(err, "PatchOrder", log.Fields{"order_id": id})
	}
	return orderResponse(view), nil
}

// toStatus переводит доменную ошибку в gRPC-статус и пишет её в лог.
// Ожидаемые ошибки уходят в Warn, остальные в Error без подробностей для клиента.
func (s *OrderService) toStatus(err error, operation string, fields log.Fields) error {
	code, message := classify(err)

	entry := s.logger.WithError(err).WithField("operation", operation).WithField("code", code.String())
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	if code == codes.Internal {
		entry.Error("order request failed")
	} else {
		entry.Warn("order request rejected")
	}

	return status.Error(code, message)
}

func classify(err error) (codes.Code, string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		st := status.FromContextError(err)
		return st.Code(), st.Message()
	case errors.Is(err, domain.ErrOrderNotFound):
		return codes.NotFound, domain.ErrOrderNotFound.Error()
	case errors.Is(err, domain.ErrCustomerNotFound):
		return codes.NotFound, domain.ErrCustomerNotFound.Error()
	case errors.Is(err, domain.ErrPaymentNotFound):
		return codes.NotFound, domain.ErrPaymentNotFound.Error()
	case errors.Is(err, domain.ErrCartNotFound):
		return codes.NotFound, domain.ErrCartNotFound.Error()
	case errors.Is(err, domain.ErrUnknownCurrency):
		var unknown *domain.UnknownCurrencyError
		if errors.As(err, &unknown) {
			return codes.InvalidArgument, unknown.Error()
		}
		return codes.InvalidArgument, domain.ErrUnknownCurrency.Error()
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return codes.Unavailable, domain.ErrUpstreamUnavailable.Error()
	case errors.Is(err, domain.ErrUpstreamTransport):
		return codes.Unavailable, domain.ErrUpstreamTransport.Error()
	case errors.Is(err, domain.ErrNoChanges):
		return codes.FailedPrecondition, domain.ErrNoChanges.Error()
	case domain.IsVersionConflict(err):
		return codes.Aborted, domain.ErrOrderVersionConflict.Error()
	case errors.Is(err, domain.ErrAmountNegative), errors.Is(err, domain.ErrOrderIDRequired):
		return codes.InvalidArgument, err.Error()
	default:
		return codes.Internal, "internal error"
	}
}

var _ OrderServiceServer = (*OrderService)(nil)
