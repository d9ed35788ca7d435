package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// BaseCurrency — валюта, в которой хранятся все суммы заказов.
	BaseCurrency = "USD"
	// MoneyScale — число знаков после запятой в денежных полях представления.
	MoneyScale int32 = 2
)

// Order агрегирует хранимое состояние заказа. Суммы всегда в BaseCurrency.
type Order struct {
	ID         int64
	CustomerID int64
	PaymentID  int64
	CartID     int64
	PaidPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderView — производное представление заказа, суммы которого могли быть пересчитаны.
// Никогда не сохраняется.
type OrderView struct {
	ID         int64
	CustomerID int64
	PaymentID  int64
	CartID     int64
	PaidPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	// Currency — валюта, в которой выражены PaidPrice и TotalPrice.
	Currency string
	// Rate — применённый курс (1 для базовой валюты).
	Rate decimal.Decimal
}

// OrderPatch описывает частичное обновление: nil означает «поле не передано».
type OrderPatch struct {
	PaidPrice  *decimal.Decimal
	TotalPrice *decimal.Decimal
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ID <= 0 {
		errs = append(errs, ErrOrderIDRequired)
	}
	if o.PaidPrice.IsNegative() || o.TotalPrice.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}

// View возвращает представление заказа в базовой валюте без пересчёта.
func (o Order) View() OrderView {
	return OrderView{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		PaymentID:  o.PaymentID,
		CartID:     o.CartID,
		PaidPrice:  o.PaidPrice,
		TotalPrice: o.TotalPrice,
		Currency:   BaseCurrency,
		Rate:       decimal.NewFromInt(1),
	}
}

// ConvertedView пересчитывает суммы по курсу rate (1 USD = rate code).
// Умножение выполняется точно, округление HALF_UP до MoneyScale применяется один раз.
func (o Order) ConvertedView(code string, rate decimal.Decimal) OrderView {
	view := o.View()
	view.PaidPrice = ConvertAmount(o.PaidPrice, rate)
	view.TotalPrice = ConvertAmount(o.TotalPrice, rate)
	view.Currency = code
	view.Rate = rate
	return view
}

// ConvertAmount умножает сумму на курс и округляет до двух знаков (половина от нуля).
func ConvertAmount(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(MoneyScale)
}

// Apply применяет к заказу переданные поля patch и сообщает, изменилось ли что-нибудь.
// Сравнение по значению: 100 и 100.00 считаются равными.
func (p OrderPatch) Apply(order *Order) bool {
	changed := false

	if p.PaidPrice != nil && !order.PaidPrice.Equal(*p.PaidPrice) {
		order.PaidPrice = *p.PaidPrice
		changed = true
	}
	if p.TotalPrice != nil && !order.TotalPrice.Equal(*p.TotalPrice) {
		order.TotalPrice = *p.TotalPrice
		changed = true
	}

	return changed
}
