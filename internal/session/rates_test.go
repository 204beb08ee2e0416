package session

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ribelo/degiro-go/internal/models"
)

func storeWithRates(t *testing.T, rates map[string]decimal.Decimal) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Replace(State{
		Level: LevelAuthenticated,
		Data:  Data{SessionID: "ABC123", Rates: rates},
	}))
	return s
}

func TestStore_Rate(t *testing.T) {
	s := storeWithRates(t, map[string]decimal.Decimal{
		"EUR/USD": decimal.NewFromFloat(1.08),
		"EUR/GBP": decimal.RequireFromString("0.9"),
	})

	tests := []struct {
		name string
		from models.Currency
		to   models.Currency
		want decimal.Decimal
	}{
		{"same currency is always 1", models.PLN, models.PLN, decimal.NewFromInt(1)},
		{"direct pair", models.EUR, models.USD, decimal.NewFromFloat(1.08)},
		{
			"inverse pair is the reciprocal",
			models.GBP, models.EUR,
			decimal.NewFromInt(1).Div(decimal.RequireFromString("0.9")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Rate(tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestStore_Rate_Unavailable(t *testing.T) {
	s := storeWithRates(t, map[string]decimal.Decimal{
		"EUR/USD": decimal.NewFromFloat(1.08),
	})

	_, err := s.Rate(models.CHF, models.JPY)
	var rateErr *RateUnavailableError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, models.CHF, rateErr.From)
	assert.Equal(t, models.JPY, rateErr.To)
}

func TestStore_Rate_ZeroCachedRate(t *testing.T) {
	s := storeWithRates(t, map[string]decimal.Decimal{
		"EUR/USD": decimal.Zero,
	})

	// Обратный поиск по нулевому курсу не должен делить на ноль
	_, err := s.Rate(models.USD, models.EUR)
	assert.Error(t, err)
}

func TestStore_Rate_SameCurrencyWorksWhenCorrupted(t *testing.T) {
	s := New()
	assert.Panics(t, func() {
		_ = s.Update(func(*State) { panic("boom") })
	})

	// from == to короткое замыкание не трогает store
	rate, err := s.Rate(models.EUR, models.EUR)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	// А любой настоящий lookup обязан увидеть отравление
	_, err = s.Rate(models.EUR, models.USD)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestStore_Convert(t *testing.T) {
	s := storeWithRates(t, map[string]decimal.Decimal{
		"EUR/USD": decimal.NewFromFloat(1.08),
	})

	out, err := s.Convert(models.NewMoney(models.EUR, decimal.NewFromInt(100)), models.USD)
	require.NoError(t, err)
	assert.Equal(t, models.USD, out.Currency)
	assert.True(t, out.Amount.Equal(decimal.NewFromInt(108)))
}
