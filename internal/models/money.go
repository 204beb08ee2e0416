package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money представляет денежную сумму в конкретной валюте
type Money struct {
	Currency Currency
	Amount   decimal.Decimal
}

// NewMoney создает новую денежную сумму
func NewMoney(currency Currency, amount decimal.Decimal) Money {
	return Money{Currency: currency, Amount: amount}
}

// CurrencyMismatchError is returned by arithmetic on amounts in different
// currencies. Convert through the session rate table first.
type CurrencyMismatchError struct {
	Op    string
	Left  Currency
	Right Currency
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("cannot %s %s and %s: currencies differ", e.Op, e.Left, e.Right)
}

// Add складывает две суммы в одной валюте
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, &CurrencyMismatchError{Op: "add", Left: m.Currency, Right: other.Currency}
	}
	return Money{Currency: m.Currency, Amount: m.Amount.Add(other.Amount)}, nil
}

// Sub вычитает сумму в той же валюте
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, &CurrencyMismatchError{Op: "sub", Left: m.Currency, Right: other.Currency}
	}
	return Money{Currency: m.Currency, Amount: m.Amount.Sub(other.Amount)}, nil
}

// Neg возвращает сумму с противоположным знаком
func (m Money) Neg() Money {
	return Money{Currency: m.Currency, Amount: m.Amount.Neg()}
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.String(), m.Currency)
}
