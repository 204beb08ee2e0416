package models

import "fmt"

// Currency — ISO 4217 код валюты, используемый брокером
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	CHF Currency = "CHF"
	JPY Currency = "JPY"
	PLN Currency = "PLN"
	GBP Currency = "GBP"
)

// ParseCurrency parses a currency code as it appears in API responses.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(s) {
	case USD, EUR, CHF, JPY, PLN, GBP:
		return Currency(s), nil
	}
	return "", fmt.Errorf("unknown currency %q", s)
}

func (c Currency) String() string {
	return string(c)
}

// PairKey строит ключ валютной пары в формате "FROM/TO"
// Используется как ключ в таблице курсов
func PairKey(from, to Currency) string {
	return string(from) + "/" + string(to)
}
