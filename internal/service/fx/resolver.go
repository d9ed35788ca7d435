package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderfx/internal/client/currencylayer"
	"github.com/vladislavdragonenkov/orderfx/internal/currency"
	"github.com/vladislavdragonenkov/orderfx/internal/domain"
	"github.com/vladislavdragonenkov/orderfx/internal/metrics"
)

// liveFormat — значение параметра format, которое всегда отправляется провайдеру.
const liveFormat = 1

// ErrAccessKeyRequired возвращается, если ключ доступа к провайдеру не задан.
var ErrAccessKeyRequired = errors.New("exchange rate provider access key is required")

// QuoteProvider — минимальный контракт клиента провайдера курсов.
type QuoteProvider interface {
	Live(ctx context.Context, accessKey, currencies, source string, format int) (currencylayer.LiveResponse, error)
}

// RateResolver переводит код валюты в курс USD -> code.
type RateResolver interface {
	RateFor(ctx context.Context, code string) (decimal.Decimal, error)
}

// Resolver проверяет код по реестру и получает курс одним запросом к провайдеру.
type Resolver struct {
	provider  QuoteProvider
	accessKey string
	metrics   *metrics.OrderMetrics
	logger    *log.Entry
}

// NewResolver конструирует Resolver. Ключ доступа читается один раз при старте.
func NewResolver(provider QuoteProvider, accessKey string, m *metrics.OrderMetrics, logger *log.Entry) (*Resolver, error) {
	if provider == nil {
		return nil, errors.New("quote provider is required")
	}
	if strings.TrimSpace(accessKey) == "" {
		return nil, ErrAccessKeyRequired
	}
	if logger == nil {
		logger = log.WithField("component", "fx-resolver")
	}
	return &Resolver{
		provider:  provider,
		accessKey: accessKey,
		metrics:   m,
		logger:    logger,
	}, nil
}

// RateFor возвращает положительный курс 1 USD = rate code.
func (r *Resolver) RateFor(ctx context.Context, code string) (decimal.Decimal, error) {
	target := currency.Normalize(code)
	if !currency.Contains(target) {
		r.metrics.RecordRateLookup(metrics.RateResultUnknownCurrency)
		return decimal.Decimal{}, &domain.UnknownCurrencyError{Code: target}
	}

	started := time.Now()
	resp, err := r.provider.Live(ctx, r.accessKey, target, currency.Base, liveFormat)
	r.metrics.RecordUpstreamDuration(time.Since(started))
	if err != nil {
		r.metrics.RecordRateLookup(metrics.RateResultTransport)
		r.logger.WithError(err).WithField("currency", target).Warn("exchange rate request failed")
		return decimal.Decimal{}, err
	}

	rate, err := extractRate(resp, target)
	if err != nil {
		r.metrics.RecordRateLookup(metrics.RateResultUnavailable)
		r.logger.WithError(err).WithField("currency", target).Warn("exchange rate provider returned unusable quote")
		return decimal.Decimal{}, err
	}

	r.metrics.RecordRateLookup(metrics.RateResultOK)
	return rate, nil
}

// extractRate применяет соглашение о ключах котировок к конверту ответа.
func extractRate(resp currencylayer.LiveResponse, target string) (decimal.Decimal, error) {
	if resp.Success == nil || !*resp.Success {
		if resp.Error != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: provider error %d (%s): %s",
				domain.ErrUpstreamUnavailable, resp.Error.Code, resp.Error.Type, resp.Error.Info)
		}
		return decimal.Decimal{}, fmt.Errorf("%w: success flag is absent or false", domain.ErrUpstreamUnavailable)
	}

	key := currencylayer.QuoteKey(currency.Base, target)
	raw, ok := resp.Quotes[key]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: quote %s is missing", domain.ErrUpstreamUnavailable, key)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: quote %s is not a number: %v", domain.ErrUpstreamUnavailable, key, err)
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: quote %s must be positive, got %s", domain.ErrUpstreamUnavailable, key, rate)
	}

	return rate, nil
}

var _ RateResolver = (*Resolver)(nil)
