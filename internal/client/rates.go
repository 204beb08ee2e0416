package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ribelo/degiro-go/internal/models"
	"github.com/ribelo/degiro-go/internal/session"
	"github.com/ribelo/degiro-go/internal/transport"
)

// Валюты, для которых кэшируются курсы против базовой валюты аккаунта
var rateCurrencies = []models.Currency{
	models.USD, models.EUR, models.CHF, models.JPY, models.PLN, models.GBP,
}

// fetchClientInfo загружает данные клиента из personal account сервиса
func (c *Client) fetchClientInfo(ctx context.Context, paURL, sessionID string) (*models.ClientInfo, error) {
	req := transport.Get("client_info", joinURL(paURL, "client")).
		NoAuth().
		WithHeader("Referer", refererURL).
		WithQuery("sessionId", sessionID)

	var wrapper struct {
		Data models.ClientInfo `json:"data"`
	}
	if err := c.exec.Do(ctx, req, &wrapper); err != nil {
		return nil, err
	}

	info := wrapper.Data
	if info.BaseCurrencyString != "" {
		cur, err := models.ParseCurrency(info.BaseCurrencyString)
		if err != nil {
			return nil, &transport.DataError{Op: "client_info", Path: req.URL, Err: err}
		}
		info.BaseCurrency = cur
	} else {
		info.BaseCurrency = models.EUR
	}

	return &info, nil
}

// fetchRates загружает курсы базовой валюты против остальных поддерживаемых.
// Запросы идут конкурентно; провал любого из них проваливает весь refresh
// с первой встреченной ошибкой - частично заполненная таблица хуже пустой.
func (c *Client) fetchRates(
	ctx context.Context,
	cfg *models.AccountConfig,
	sessionID string,
	intAccount int,
	base models.Currency,
) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(rateCurrencies))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, quote := range rateCurrencies {
		if quote == base {
			continue
		}
		g.Go(func() error {
			rate, err := c.fetchRate(gctx, cfg, sessionID, intAccount, base, quote)
			if err != nil {
				return err
			}
			mu.Lock()
			rates[models.PairKey(base, quote)] = rate
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return rates, nil
}

// fetchRate запрашивает один курс у reporting сервиса
func (c *Client) fetchRate(
	ctx context.Context,
	cfg *models.AccountConfig,
	sessionID string,
	intAccount int,
	from, to models.Currency,
) (decimal.Decimal, error) {
	req := transport.Get("exchange_rate", joinURL(cfg.ReportingURL, "v4/exchange-rate")).
		NoAuth().
		WithHeader("Referer", refererURL).
		WithQuery("fromCurrency", from.String()).
		WithQuery("toCurrency", to.String()).
		WithQuery("intAccount", fmt.Sprintf("%d", intAccount)).
		WithQuery("sessionId", sessionID)

	var wrapper struct {
		Data struct {
			Price decimal.Decimal `json:"price"`
		} `json:"data"`
	}
	if err := c.exec.Do(ctx, req, &wrapper); err != nil {
		return decimal.Decimal{}, err
	}
	if wrapper.Data.Price.IsZero() {
		return decimal.Decimal{}, &transport.DataError{
			Op:   "exchange_rate",
			Path: req.URL,
			Err:  fmt.Errorf("service returned zero rate for %s", models.PairKey(from, to)),
		}
	}
	return wrapper.Data.Price, nil
}

// RefreshRates перечитывает таблицу курсов для текущей сессии.
// Между refresh-ами кэш может устаревать; источником курсов остается сервис.
func (c *Client) RefreshRates(ctx context.Context) error {
	if err := c.EnsureLevel(ctx, session.LevelAuthenticated); err != nil {
		return err
	}
	snap, err := c.store.Snapshot()
	if err != nil {
		return err
	}
	if snap.Data.AccountConfig == nil {
		return fmt.Errorf("session carries no account config")
	}

	base := models.EUR
	if len(snap.Data.Rates) > 0 {
		// База не меняется в рамках сессии; восстанавливаем ее из ключей
		for key := range snap.Data.Rates {
			if i := strings.IndexByte(key, '/'); i > 0 {
				base = models.Currency(key[:i])
			}
			break
		}
	}

	rates, err := c.fetchRates(ctx, snap.Data.AccountConfig, snap.Data.SessionID, snap.Data.IntAccount, base)
	if err != nil {
		return err
	}
	if err := c.store.SetRates(rates); err != nil {
		return err
	}

	c.saveSession()
	return nil
}

// joinURL склеивает базовый URL сервиса и относительный путь
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
