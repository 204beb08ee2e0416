package session

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ribelo/degiro-go/internal/models"
)

// RateUnavailableError is returned when neither the direct nor the inverse
// currency pair is present in the cached rate table.
type RateUnavailableError struct {
	From models.Currency
	To   models.Currency
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("exchange rate not available for %s to %s", e.From, e.To)
}

// Rate возвращает курс конвертации from -> to из кэша курсов.
// Порядок поиска: одинаковые валюты -> 1, прямой ключ, обратный ключ
// (возвращается обратная величина). Кэш заполняется после логина;
// источником курсов остается сервис, кэш может устаревать между refresh-ами.
func (s *Store) Rate(from, to models.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	snap, err := s.Snapshot()
	if err != nil {
		return decimal.Decimal{}, err
	}

	if rate, ok := snap.Data.Rates[models.PairKey(from, to)]; ok {
		return rate, nil
	}

	if rate, ok := snap.Data.Rates[models.PairKey(to, from)]; ok {
		if rate.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("zero exchange rate cached for %s", models.PairKey(to, from))
		}
		return decimal.NewFromInt(1).Div(rate), nil
	}

	return decimal.Decimal{}, &RateUnavailableError{From: from, To: to}
}

// Convert конвертирует денежную сумму в целевую валюту по кэшированному курсу
func (s *Store) Convert(m models.Money, to models.Currency) (models.Money, error) {
	rate, err := s.Rate(m.Currency, to)
	if err != nil {
		return models.Money{}, err
	}
	return models.NewMoney(to, m.Amount.Mul(rate)), nil
}
