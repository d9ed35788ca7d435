// Package currencylayer — stateless-адаптер к endpoint /live провайдера курсов apilayer.
package currencylayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderfx/internal/domain"
)

const (
	// DefaultBaseURL — базовый адрес API провайдера.
	DefaultBaseURL = "http://apilayer.net/api"
	// DefaultTimeout ограничивает один запрос к провайдеру.
	DefaultTimeout = 5 * time.Second

	livePath = "/live"
)

// APIError — блок ошибки, который провайдер возвращает вместе с success=false.
type APIError struct {
	Code int    `json:"code"`
	Type string `json:"type"`
	Info string `json:"info"`
}

// LiveResponse — типизированный конверт ответа /live.
// Ключи Quotes склеены из кодов источника и цели, например "USDEUR".
type LiveResponse struct {
	Success   *bool                  `json:"success"`
	Terms     string                 `json:"terms"`
	Privacy   string                 `json:"privacy"`
	Timestamp int64                  `json:"timestamp"`
	Source    string                 `json:"source"`
	Quotes    map[string]json.Number `json:"quotes"`
	Error     *APIError              `json:"error,omitempty"`
}

// Client выполняет ровно один GET на вызов: без retry и кэширования.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент (например, с собственным transport).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient создаёт клиента. Пустой baseURL означает DefaultBaseURL, timeout<=0 означает DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, options ...Option) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithField("component", "currencylayer-client"),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Live запрашивает текущие котировки currencies относительно source.
// Любая ошибка транспорта, не-2xx статус или нечитаемое тело оборачивают domain.ErrUpstreamTransport.
func (c *Client) Live(ctx context.Context, accessKey, currencies, source string, format int) (LiveResponse, error) {
	query := url.Values{}
	query.Set("access_key", accessKey)
	query.Set("currencies", currencies)
	query.Set("source", source)
	query.Set("format", strconv.Itoa(format))

	endpoint := c.baseURL + livePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return LiveResponse{}, fmt.Errorf("%w: build request: %v", domain.ErrUpstreamTransport, stripURL(err))
	}
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(log.Fields{
		"currencies": currencies,
		"source":     source,
	}).Debug("requesting live quotes")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LiveResponse{}, fmt.Errorf("%w: http get: %w", domain.ErrUpstreamTransport, stripURL(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return LiveResponse{}, fmt.Errorf("%w: provider returned status %d", domain.ErrUpstreamTransport, resp.StatusCode)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()

	var payload LiveResponse
	if err := decoder.Decode(&payload); err != nil {
		return LiveResponse{}, fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamTransport, err)
	}

	return payload, nil
}

// stripURL убирает адрес запроса из ошибки: в нём есть access_key.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// QuoteKey строит ключ котировки: код источника + код цели без разделителя.
func QuoteKey(source, target string) string {
	return source + target
}
