package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vladislavdragonenkov/orderfx/internal/client/currencylayer"
	"github.com/vladislavdragonenkov/orderfx/internal/domain"
	"github.com/vladislavdragonenkov/orderfx/internal/metrics"
	"github.com/vladislavdragonenkov/orderfx/internal/service/fx"
	"github.com/vladislavdragonenkov/orderfx/internal/service/order"
	"github.com/vladislavdragonenkov/orderfx/internal/storage/memory"
)

type quoteProviderStub struct {
	mu    sync.Mutex
	calls int
	resp  currencylayer.LiveResponse
	err   error
}

func (s *quoteProviderStub) Live(context.Context, string, string, string, int) (currencylayer.LiveResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.resp, s.err
}

func (s *quoteProviderStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func quotes(success bool, values map[string]string) currencylayer.LiveResponse {
	resp := currencylayer.LiveResponse{Success: &success, Source: "USD", Quotes: map[string]json.Number{}}
	for k, v := range values {
		resp.Quotes[k] = json.Number(v)
	}
	return resp
}

// countingRepo считает записи, чтобы проверить, что чтение ничего не сохраняет.
type countingRepo struct {
	domain.OrderRepository
	mu    sync.Mutex
	saves int
}

func (r *countingRepo) Save(o domain.Order) error {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return r.OrderRepository.Save(o)
}

func (r *countingRepo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type fixture struct {
	svc       *order.Service
	repo      *countingRepo
	provider  *quoteProviderStub
	outbox    *memory.OutboxRepositoryInMemory
	customers *memory.ReferenceRepository
	payments  *memory.ReferenceRepository
	carts     *memory.ReferenceRepository
}

func newFixture(t testing.TB, provider *quoteProviderStub) *fixture {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("component", "order-service-test")

	m := metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())
	resolver, err := fx.NewResolver(provider, "test-key", m, entry)
	require.NoError(t, err)

	repo := &countingRepo{OrderRepository: memory.NewOrderRepository()}
	refs, customers, payments, carts := memory.NewReferenceRepositories()
	outbox := memory.NewOutboxRepository()

	svc, err := order.NewService(repo, refs, resolver,
		order.WithOutbox(outbox),
		order.WithMetrics(m),
		order.WithLogger(entry),
		order.WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
	require.NoError(t, err)

	return &fixture{
		svc:       svc,
		repo:      repo,
		provider:  provider,
		outbox:    outbox,
		customers: customers,
		payments:  payments,
		carts:     carts,
	}
}

func (f *fixture) seed(t testing.TB, id int64, paid, total string) domain.Order {
	t.Helper()
	o := domain.Order{
		ID:         id,
		CustomerID: 11,
		PaymentID:  21,
		CartID:     31,
		PaidPrice:  decimal.RequireFromString(paid),
		TotalPrice: decimal.RequireFromString(total),
		CreatedAt:  time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.repo.Create(o))
	f.customers.Add(o.CustomerID)
	f.payments.Add(o.PaymentID)
	f.carts.Add(o.CartID)
	return o
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	refs, _, _, _ := memory.NewReferenceRepositories()
	resolver, err := fx.NewResolver(&quoteProviderStub{}, "k", nil, nil)
	require.NoError(t, err)

	_, err = order.NewService(nil, refs, resolver)
	require.Error(t, err)
	_, err = order.NewService(memory.NewOrderRepository(), refs, nil)
	require.Error(t, err)
	_, err = order.NewService(memory.NewOrderRepository(), domain.ReferenceRepositories{}, resolver)
	require.Error(t, err)
}

func TestRetrieveOrderDetailByID_ConvertsWithRate(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{resp: quotes(true, map[string]string{"USDEUR": "0.9234"})})
	f.seed(t, 7, "100.00", "120.00")

	view, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, "EUR")
	require.NoError(t, err)

	require.Equal(t, "92.34", view.PaidPrice.StringFixed(2))
	require.Equal(t, "110.81", view.TotalPrice.StringFixed(2))
	require.Equal(t, "EUR", view.Currency)
	require.Equal(t, "0.9234", view.Rate.String())
	require.Equal(t, int64(7), view.ID)
	require.Equal(t, int64(11), view.CustomerID)
	require.Equal(t, 1, f.provider.Calls())
}

func TestRetrieveOrderDetailByID_WithoutCurrencyKeepsStoredAmounts(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{resp: quotes(true, map[string]string{"USDEUR": "0.9234"})})
	f.seed(t, 7, "100.00", "120.00")

	for _, currency := range []string{"", "   "} {
		view, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, currency)
		require.NoError(t, err)
		require.Equal(t, "100.00", view.PaidPrice.StringFixed(2))
		require.Equal(t, "120.00", view.TotalPrice.StringFixed(2))
		require.Equal(t, domain.BaseCurrency, view.Currency)
		require.True(t, view.Rate.Equal(decimal.NewFromInt(1)))
	}
	require.Zero(t, f.provider.Calls())
}

func TestRetrieveOrderDetailByID_RoundsHalfUp(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{resp: quotes(true, map[string]string{"USDEUR": "1.0"})})
	f.seed(t, 7, "10.005", "10.015")

	view, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, "EUR")
	require.NoError(t, err)
	require.Equal(t, "10.01", view.PaidPrice.StringFixed(2))
	require.Equal(t, "10.02", view.TotalPrice.StringFixed(2))
}

func TestRetrieveOrderDetailByID_UnknownCurrency(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{resp: quotes(true, map[string]string{"USDZZZ": "2"})})
	f.seed(t, 7, "100.00", "120.00")

	_, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, "ZZZ")
	require.ErrorIs(t, err, domain.ErrUnknownCurrency)

	var unknown *domain.UnknownCurrencyError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, "ZZZ", unknown.Code)
	require.Zero(t, f.provider.Calls())
}

func TestRetrieveOrderDetailByID_UpstreamUnavailable(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{resp: quotes(false, nil)})
	f.seed(t, 7, "100.00", "120.00")

	_, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, "EUR")
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	require.Equal(t, 1, f.provider.Calls())
}

func TestRetrieveOrderDetailByID_TransportErrorPropagates(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{err: domain.ErrUpstreamTransport})
	f.seed(t, 7, "100.00", "120.00")

	_, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, "EUR")
	require.ErrorIs(t, err, domain.ErrUpstreamTransport)
}

func TestRetrieveOrderDetailByID_OrderNotFoundBeforeRateFetch(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{resp: quotes(true, map[string]string{"USDEUR": "0.9234"})})

	_, err := f.svc.RetrieveOrderDetailByID(context.Background(), 999, "EUR")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.Zero(t, f.provider.Calls())

	_, err = f.svc.RetrieveOrderDetailByID(context.Background(), 999, "ZZZ")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRetrieveOrderDetailByID_DoesNotWrite(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{resp: quotes(true, map[string]string{"USDJPY": "151.335"})})
	seeded := f.seed(t, 7, "100.00", "120.00")

	for i := 0; i < 3; i++ {
		_, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, "jpy")
		require.NoError(t, err)
	}

	stored, err := f.repo.Get(7)
	require.NoError(t, err)
	require.True(t, stored.PaidPrice.Equal(seeded.PaidPrice))
	require.True(t, stored.TotalPrice.Equal(seeded.TotalPrice))
	require.Equal(t, seeded.Version, stored.Version)
	require.Zero(t, f.repo.Saves())
	require.Empty(t, f.outbox.AllPending())
	require.Equal(t, 3, f.provider.Calls())
}

func TestRetrieveOrderDetailByID_CaseInsensitive(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{resp: quotes(true, map[string]string{"USDEUR": "0.9234"})})
	f.seed(t, 7, "100.00", "120.00")

	lower, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, "eur")
	require.NoError(t, err)
	upper, err := f.svc.RetrieveOrderDetailByID(context.Background(), 7, "EUR")
	require.NoError(t, err)
	require.Equal(t, upper.Currency, lower.Currency)
	require.True(t, upper.PaidPrice.Equal(lower.PaidPrice))
	require.True(t, upper.TotalPrice.Equal(lower.TotalPrice))
}

func TestRetrieveOrderList(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{})
	f.seed(t, 9, "1.00", "2.00")
	f.seed(t, 3, "3.00", "4.00")

	views, err := f.svc.RetrieveOrderList(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, int64(3), views[0].ID)
	require.Equal(t, int64(9), views[1].ID)
	require.Equal(t, domain.BaseCurrency, views[0].Currency)
}

func TestUpdateOrder(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{})
	seeded := f.seed(t, 7, "100.00", "120.00")
	f.customers.Add(12)

	incoming := seeded
	incoming.CustomerID = 12
	incoming.PaidPrice = decimal.RequireFromString("110.00")

	view, err := f.svc.UpdateOrder(context.Background(), incoming)
	require.NoError(t, err)
	require.Equal(t, int64(12), view.CustomerID)
	require.Equal(t, "110.00", view.PaidPrice.StringFixed(2))

	stored, err := f.repo.Get(7)
	require.NoError(t, err)
	require.Equal(t, seeded.Version+1, stored.Version)
	require.Equal(t, seeded.CreatedAt, stored.CreatedAt)
	require.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), stored.UpdatedAt)

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, domain.OutboxEventOrderUpdated, pending[0].EventType)
	require.Equal(t, domain.OutboxAggregateOrder, pending[0].AggregateType)
	require.Equal(t, "7", pending[0].AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	require.Equal(t, "110.00", payload["paid_price"])
	require.Equal(t, order.OperationReplace, payload["operation"])
}

func TestUpdateOrder_ValidationOrder(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture, o *domain.Order)
		wantErr error
	}{
		{
			name:    "order missing",
			mutate:  func(_ *fixture, o *domain.Order) { o.ID = 999 },
			wantErr: domain.ErrOrderNotFound,
		},
		{
			name: "customer checked before payment",
			mutate: func(_ *fixture, o *domain.Order) {
				o.CustomerID = 404
				o.PaymentID = 404
			},
			wantErr: domain.ErrCustomerNotFound,
		},
		{
			name: "payment checked before cart",
			mutate: func(_ *fixture, o *domain.Order) {
				o.PaymentID = 404
				o.CartID = 404
			},
			wantErr: domain.ErrPaymentNotFound,
		},
		{
			name:    "cart missing",
			mutate:  func(_ *fixture, o *domain.Order) { o.CartID = 404 },
			wantErr: domain.ErrCartNotFound,
		},
		{
			name:    "negative amount",
			mutate:  func(_ *fixture, o *domain.Order) { o.TotalPrice = decimal.RequireFromString("-0.01") },
			wantErr: domain.ErrAmountNegative,
		},
		{
			name:    "missing id",
			mutate:  func(_ *fixture, o *domain.Order) { o.ID = 0 },
			wantErr: domain.ErrOrderIDRequired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &quoteProviderStub{})
			incoming := f.seed(t, 7, "100.00", "120.00")
			tc.mutate(f, &incoming)

			_, err := f.svc.UpdateOrder(context.Background(), incoming)
			require.ErrorIs(t, err, tc.wantErr)
			require.Zero(t, f.repo.Saves())
			require.Empty(t, f.outbox.AllPending())
		})
	}
}

func TestUpdateOrderByID(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{})
	f.seed(t, 7, "100.00", "120.00")

	total := decimal.RequireFromString("130")
	view, err := f.svc.UpdateOrderByID(context.Background(), 7, domain.OrderPatch{TotalPrice: &total})
	require.NoError(t, err)
	require.Equal(t, "130.00", view.TotalPrice.StringFixed(2))
	require.Equal(t, "100.00", view.PaidPrice.StringFixed(2))
	require.Len(t, f.outbox.AllPending(), 1)
}

func TestUpdateOrderByID_NoChanges(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{})
	f.seed(t, 7, "100.00", "120.00")

	paid := decimal.RequireFromString("100")
	total := decimal.RequireFromString("120.000")
	_, err := f.svc.UpdateOrderByID(context.Background(), 7, domain.OrderPatch{PaidPrice: &paid, TotalPrice: &total})
	require.ErrorIs(t, err, domain.ErrNoChanges)

	_, err = f.svc.UpdateOrderByID(context.Background(), 7, domain.OrderPatch{})
	require.ErrorIs(t, err, domain.ErrNoChanges)

	require.Zero(t, f.repo.Saves())
	require.Empty(t, f.outbox.AllPending())
}

func TestUpdateOrderByID_Errors(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{})
	f.seed(t, 7, "100.00", "120.00")

	paid := decimal.RequireFromString("1")
	_, err := f.svc.UpdateOrderByID(context.Background(), 999, domain.OrderPatch{PaidPrice: &paid})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	negative := decimal.RequireFromString("-5")
	_, err = f.svc.UpdateOrderByID(context.Background(), 7, domain.OrderPatch{PaidPrice: &negative})
	require.ErrorIs(t, err, domain.ErrAmountNegative)
}

type failingOutbox struct {
	*memory.OutboxRepositoryInMemory
}

func (failingOutbox) Enqueue(domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox down")
}

func TestUpdateOrderByID_OutboxFailureDoesNotFailUpdate(t *testing.T) {
	provider := &quoteProviderStub{}
	resolver, err := fx.NewResolver(provider, "k", nil, nil)
	require.NoError(t, err)

	repo := memory.NewOrderRepository()
	require.NoError(t, repo.Create(domain.Order{
		ID:         7,
		PaidPrice:  decimal.RequireFromString("1"),
		TotalPrice: decimal.RequireFromString("2"),
	}))
	refs, _, _, _ := memory.NewReferenceRepositories()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	svc, err := order.NewService(repo, refs, resolver,
		order.WithOutbox(failingOutbox{memory.NewOutboxRepository()}),
		order.WithLogger(logger.WithField("component", "test")),
	)
	require.NoError(t, err)

	total := decimal.RequireFromString("3")
	view, err := svc.UpdateOrderByID(context.Background(), 7, domain.OrderPatch{TotalPrice: &total})
	require.NoError(t, err)
	require.Equal(t, "3.00", view.TotalPrice.StringFixed(2))
}

func TestUpdate_CanceledContext(t *testing.T) {
	f := newFixture(t, &quoteProviderStub{})
	seeded := f.seed(t, 7, "100.00", "120.00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.UpdateOrder(ctx, seeded)
	require.ErrorIs(t, err, context.Canceled)
	_, err = f.svc.RetrieveOrderList(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func amountGen() *rapid.Generator[decimal.Decimal] {
	return rapid.Custom(func(t *rapid.T) decimal.Decimal {
		cents := rapid.Int64Range(0, 10_000_000).Draw(t, "cents")
		return decimal.New(cents, -2)
	})
}

func TestProperty_IdentityWithoutCurrency(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t, &quoteProviderStub{})
		paid := amountGen().Draw(rt, "paid")
		total := amountGen().Draw(rt, "total")
		f.seed(t, 1, paid.String(), total.String())

		view, err := f.svc.RetrieveOrderDetailByID(context.Background(), 1, "")
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if !view.PaidPrice.Equal(paid) || !view.TotalPrice.Equal(total) {
			rt.Fatalf("expected %s/%s, got %s/%s", paid, total, view.PaidPrice, view.TotalPrice)
		}
	})
}

func TestProperty_ConvertedAmountsAreRounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rateUnits := rapid.Int64Range(1, 100_000_000).Draw(rt, "rate")
		rate := decimal.New(rateUnits, -6)

		f := newFixture(t, &quoteProviderStub{resp: quotes(true, map[string]string{"USDEUR": rate.String()})})
		paid := amountGen().Draw(rt, "paid")
		f.seed(t, 1, paid.String(), paid.String())

		view, err := f.svc.RetrieveOrderDetailByID(context.Background(), 1, "EUR")
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}

		exact := paid.Mul(rate)
		if view.PaidPrice.Exponent() < -2 {
			rt.Fatalf("expected at most two fractional digits, got %s", view.PaidPrice)
		}
		if view.PaidPrice.Sub(exact).Abs().GreaterThan(decimal.New(5, -3)) {
			rt.Fatalf("rounded %s too far from exact %s", view.PaidPrice, exact)
		}
		if f.provider.Calls() != 1 {
			rt.Fatalf("expected exactly one upstream call, got %d", f.provider.Calls())
		}
	})
}

type conflictingRepo struct {
	domain.OrderRepository
}

func (conflictingRepo) Save(domain.Order) error {
	return domain.ErrOrderVersionConflict
}

func TestUpdateOrderByID_VersionConflictIsCounted(t *testing.T) {
	resolver, err := fx.NewResolver(&quoteProviderStub{}, "k", nil, nil)
	require.NoError(t, err)

	repo := memory.NewOrderRepository()
	require.NoError(t, repo.Create(domain.Order{
		ID:         9,
		PaidPrice:  decimal.RequireFromString("1"),
		TotalPrice: decimal.RequireFromString("2"),
	}))
	refs, _, _, _ := memory.NewReferenceRepositories()

	registry := prometheus.NewRegistry()
	svc, err := order.NewService(conflictingRepo{repo}, refs, resolver,
		order.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registry)),
	)
	require.NoError(t, err)

	total := decimal.RequireFromString("5")
	_, err = svc.UpdateOrderByID(context.Background(), 9, domain.OrderPatch{TotalPrice: &total})
	require.ErrorIs(t, err, domain.ErrOrderVersionConflict)

	families, err := registry.Gather()
	require.NoError(t, err)

	var conflicts float64
	for _, family := range families {
		if family.GetName() != "orderfx_order_updates_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["operation"] == order.OperationPatch && labels["result"] == "conflict" {
				conflicts += metric.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), conflicts)
}
