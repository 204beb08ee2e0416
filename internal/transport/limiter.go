package transport

import (
	"context"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerSecond - скорость пополнения token bucket по умолчанию.
	// Подобрано под учет запросов на стороне сервиса.
	DefaultRequestsPerSecond = 12
	// DefaultBurst - емкость bucket по умолчанию
	DefaultBurst = 12
)

// Limiter - token-bucket admission control для исходящих запросов.
// Wait блокирует вызывающую goroutine до появления токена; очередь
// ожидающих честная (FIFO). Потраченный токен не возвращается, даже если
// последующая отправка провалилась - сервис учитывает попытки, не успехи.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter создает limiter с указанной скоростью пополнения и емкостью
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		perSecond = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait блокирует до получения одного admission-токена
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
