package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// NetworkError - транспортный сбой до получения ответа (connect, timeout, TLS).
// Attempts показывает сколько попыток было сделано до того, как ошибка
// всплыла наружу.
type NetworkError struct {
	Op       string
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error after %d attempt(s) for %s: %v", e.Op, e.Attempts, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// preSend reports whether the failure happened before any bytes could have
// reached the service. Only such failures are safe to retry for mutating
// requests: a dial error means the request was never transmitted, while a
// timeout mid-exchange leaves the delivery status ambiguous.
func (e *NetworkError) preSend() bool {
	var opErr *net.OpError
	if errors.As(e.Err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

// StatusError - ответ сервиса с не-2xx статусом
type StatusError struct {
	Op         string
	Path       string
	Code       int
	Body       string
	Attempts   int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d for %s after %d attempt(s): %s", e.Op, e.Code, e.Path, e.Attempts, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d for %s after %d attempt(s)", e.Op, e.Code, e.Path, e.Attempts)
}

// retryable reports whether the status code belongs to the retryable set.
// Unlisted codes are treated as non-retryable: the protocol is
// reverse-engineered and only 429/5xx are confirmed safe.
func (e *StatusError) retryable() bool {
	switch e.Code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// DataError - тело ответа не удалось декодировать в ожидаемую схему.
// Не ретраится: повтор вернет тот же ответ.
type DataError struct {
	Op   string
	Path string
	Err  error
}

func (e *DataError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: malformed response body from %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: malformed response body: %v", e.Op, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// ErrSessionExpired - сессия протухла и один цикл re-auth ее не спас:
// повторный запрос после успешного re-auth снова получил 401.
var ErrSessionExpired = errors.New("session expired")
