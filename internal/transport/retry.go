package transport

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy - параметры ретраев транспортного уровня
type RetryPolicy struct {
	// MaxAttempts - максимум попыток, включая первую
	MaxAttempts int
	// BaseDelay - начальная задержка exponential backoff
	BaseDelay time.Duration
	// MaxDelay - потолок задержки между попытками
	MaxDelay time.Duration
	// Jitter - доля случайного разброса задержки, 0..1
	Jitter float64
}

// DefaultRetryPolicy возвращает политику по умолчанию:
// 4 попытки, backoff от 100ms до 10s с jitter 0.5
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.5,
	}
}

// newBackoff строит генератор задержек для одного прохода ретраев.
// MaxElapsedTime выключен: число попыток ограничивает MaxAttempts.
func (p RetryPolicy) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
