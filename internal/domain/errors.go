package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order could not be found")
	// ErrCustomerNotFound — клиент, на которого ссылается заказ, не существует.
	ErrCustomerNotFound = errors.New("customer could not be found")
	// ErrPaymentNotFound — платёж, на который ссылается заказ, не существует.
	ErrPaymentNotFound = errors.New("payment could not be found")
	// ErrCartNotFound — корзина, на которую ссылается заказ, не существует.
	ErrCartNotFound = errors.New("cart could not be found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrNoChanges — частичное обновление не изменило ни одного поля.
	ErrNoChanges = errors.New("no changes detected")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order id is required")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("price must be non-negative")

	// ErrUnknownCurrency — код валюты отсутствует в реестре.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrUpstreamUnavailable — провайдер курсов ответил success=false или без нужной котировки.
	ErrUpstreamUnavailable = errors.New("exchange rate provider unavailable")
	// ErrUpstreamTransport — сетевая ошибка, не-2xx ответ или нечитаемый payload провайдера.
	ErrUpstreamTransport = errors.New("exchange rate provider transport error")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// UnknownCurrencyError несёт код валюты, который не удалось найти в реестре.
type UnknownCurrencyError struct {
	Code string
}

func (e *UnknownCurrencyError) Error() string {
	return fmt.Sprintf("currency type for %s could not be found", e.Code)
}

// Is позволяет сравнивать ошибку с ErrUnknownCurrency через errors.Is.
func (e *UnknownCurrencyError) Is(target error) bool {
	return target == ErrUnknownCurrency
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound сообщает, что ошибка относится к отсутствию заказа или связанной сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrCartNotFound)
}

// IsUpstream сообщает, что ошибка пришла от провайдера курсов (любой из двух категорий).
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamTransport)
}
