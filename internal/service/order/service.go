// Package order собирает представления заказов и применяет обновления.
// Чтение никогда не пишет в хранилище: пересчитанные суммы существуют только в OrderView.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderfx/internal/currency"
	"github.com/vladislavdragonenkov/orderfx/internal/domain"
	"github.com/vladislavdragonenkov/orderfx/internal/metrics"
	"github.com/vladislavdragonenkov/orderfx/internal/service/fx"
)

// Операции обновления для метрик и событий.
const (
	OperationReplace = "replace"
	OperationPatch   = "patch"
)

const (
	updateResultOK        = "ok"
	updateResultNoChanges = "no_changes"
	updateResultRejected  = "rejected"
	updateResultConflict  = "conflict"
	updateResultError     = "error"
)

// Service реализует чтение заказов с пересчётом валюты и путь обновления.
type Service struct {
	orders  domain.OrderRepository
	refs    domain.ReferenceRepositories
	rates   fx.RateResolver
	outbox  domain.OutboxRepository
	metrics *metrics.OrderMetrics
	logger  *log.Entry
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithOutbox включает запись событий order.updated в transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithMetrics подключает метрики операций с заказами.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис заказов.
func NewService(orders domain.OrderRepository, refs domain.ReferenceRepositories, rates fx.RateResolver, opts ...Option) (*Service, error) {
	if orders == nil {
		return nil, errors.New("order repository is required")
	}
	if rates == nil {
		return nil, errors.New("rate resolver is required")
	}
	if refs.Customers == nil || refs.Payments == nil || refs.Carts == nil {
		return nil, errors.New("customer, payment and cart repositories are required")
	}

	s := &Service{
		orders: orders,
		refs:   refs,
		rates:  rates,
		logger: log.WithField("component", "order-service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RetrieveOrderDetailByID возвращает заказ, пересчитанный в валюту target.
// Пустая строка (или только пробелы) означает, что валюта не передана.
func (s *Service) RetrieveOrderDetailByID(ctx context.Context, id int64, target string) (domain.OrderView, error) {
	stored, err := s.orders.Get(id)
	if err != nil {
		return domain.OrderView{}, err
	}

	code := strings.TrimSpace(target)
	if code == "" {
		s.metrics.RecordOrderView(false)
		return stored.View(), nil
	}

	rate, err := s.rates.RateFor(ctx, code)
	if err != nil {
		if domain.IsUpstream(err) {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": id,
				"currency": code,
			}).Warn("rate provider failed, order view not converted")
		}
		return domain.OrderView{}, err
	}

	s.metrics.RecordOrderView(true)
	return stored.ConvertedView(currency.Normalize(code), rate), nil
}

// RetrieveOrderList возвращает все заказы в базовой валюте, упорядоченные по ID.
func (s *Service) RetrieveOrderList(ctx context.Context) ([]domain.OrderView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, err := s.orders.List()
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	views := make([]domain.OrderView, 0, len(stored))
	for _, o := range stored {
		views = append(views, o.View())
	}
	return views, nil
}

// UpdateOrder полностью заменяет хранимые поля заказа.
// Заказ должен существовать, а клиент, платёж и корзина проверяются именно в этом порядке.
func (s *Service) UpdateOrder(ctx context.Context, incoming domain.Order) (domain.OrderView, error) {
	view, err := s.updateOrder(ctx, incoming)
	s.metrics.RecordOrderUpdate(OperationReplace, classifyUpdate(err))
	return view, err
}

func (s *Service) updateOrder(ctx context.Context, incoming domain.Order) (domain.OrderView, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderView{}, err
	}
	if incoming.ID <= 0 {
		return domain.OrderView{}, domain.ErrOrderIDRequired
	}

	current, err := s.orders.Get(incoming.ID)
	if err != nil {
		return domain.OrderView{}, err
	}

	if err := s.checkReferences(incoming); err != nil {
		return domain.OrderView{}, err
	}
	if errs := incoming.ValidateInvariants(); len(errs) > 0 {
		return domain.OrderView{}, errors.Join(errs...)
	}

	next := current
	next.CustomerID = incoming.CustomerID
	next.PaymentID = incoming.PaymentID
	next.CartID = incoming.CartID
	next.PaidPrice = incoming.PaidPrice
	next.TotalPrice = incoming.TotalPrice

	return s.persist(next, OperationReplace)
}

// UpdateOrderByID применяет частичное обновление сумм.
// Если ни одно переданное поле не отличается от хранимого, возвращает ErrNoChanges.
func (s *Service) UpdateOrderByID(ctx context.Context, id int64, patch domain.OrderPatch) (domain.OrderView, error) {
	view, err := s.updateOrderByID(ctx, id, patch)
	s.metrics.RecordOrderUpdate(OperationPatch, classifyUpdate(err))
	return view, err
}

func (s *Service) updateOrderByID(ctx context.Context, id int64, patch domain.OrderPatch) (domain.OrderView, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderView{}, err
	}

	current, err := s.orders.Get(id)
	if err != nil {
		return domain.OrderView{}, err
	}

	next := current
	if !patch.Apply(&next) {
		return domain.OrderView{}, domain.ErrNoChanges
	}
	if errs := next.ValidateInvariants(); len(errs) > 0 {
		return domain.OrderView{}, errors.Join(errs...)
	}

	return s.persist(next, OperationPatch)
}

func (s *Service) checkReferences(o domain.Order) error {
	checks := []struct {
		name    string
		id      int64
		checker domain.ExistenceChecker
		missing error
	}{
		{name: "customer", id: o.CustomerID, checker: s.refs.Customers, missing: domain.ErrCustomerNotFound},
		{name: "payment", id: o.PaymentID, checker: s.refs.Payments, missing: domain.ErrPaymentNotFound},
		{name: "cart", id: o.CartID, checker: s.refs.Carts, missing: domain.ErrCartNotFound},
	}

	for _, check := range checks {
		exists, err := check.checker.ExistsByID(check.id)
		if err != nil {
			return fmt.Errorf("check %s %d: %w", check.name, check.id, err)
		}
		if !exists {
			return check.missing
		}
	}
	return nil
}

func (s *Service) persist(next domain.Order, operation string) (domain.OrderView, error) {
	next.UpdatedAt = s.now()
	if err := s.orders.Save(next); err != nil {
		return domain.OrderView{}, err
	}

	saved, err := s.orders.Get(next.ID)
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("reload order %d: %w", next.ID, err)
	}

	s.emitUpdated(saved, operation)
	return saved.View(), nil
}

// emitUpdated кладёт событие в outbox. Ошибка только логируется: заказ уже сохранён.
func (s *Service) emitUpdated(o domain.Order, operation string) {
	if s.outbox == nil {
		return
	}

	orderID := strconv.FormatInt(o.ID, 10)
	data, err := json.Marshal(map[string]interface{}{
		"order_id":    o.ID,
		"customer_id": o.CustomerID,
		"payment_id":  o.PaymentID,
		"cart_id":     o.CartID,
		"paid_price":  o.PaidPrice.StringFixed(domain.MoneyScale),
		"total_price": o.TotalPrice.StringFixed(domain.MoneyScale),
		"version":     o.Version,
		"operation":   operation,
		"updated_at":  o.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("marshal order event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   orderID,
		EventType:     domain.OutboxEventOrderUpdated,
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    domain.OutboxEventOrderUpdated,
		}).Error("enqueue order event failed")
	}
}

func classifyUpdate(err error) string {
	switch {
	case err == nil:
		return updateResultOK
	case errors.Is(err, domain.ErrNoChanges):
		return updateResultNoChanges
	case domain.IsVersionConflict(err):
		return updateResultConflict
	case domain.IsNotFound(err), errors.Is(err, domain.ErrAmountNegative), errors.Is(err, domain.ErrOrderIDRequired):
		return updateResultRejected
	default:
		return updateResultError
	}
}
