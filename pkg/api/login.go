// Package api contains the wire request/response shapes of the brokerage
// login endpoints. Field names follow the remote service exactly and must
// not be renamed.
package api

// LoginRequest - тело POST login/secure/login
type LoginRequest struct {
	Username           string `json:"username"`
	Password           string `json:"password"`
	IsPassCodeReset    bool   `json:"isPassCodeReset"`
	IsRedirectToMobile bool   `json:"isRedirectToMobile"`
}

// TOTPLoginRequest - тело POST login/secure/login/totp
type TOTPLoginRequest struct {
	Username           string `json:"username"`
	Password           string `json:"password"`
	OneTimePassword    string `json:"oneTimePassword"`
	IsPassCodeReset    bool   `json:"isPassCodeReset"`
	IsRedirectToMobile bool   `json:"isRedirectToMobile"`
}

// Статусы логина, которые возвращает сервис
const (
	// LoginStatusSuccess - логин завершен, sessionId выдан
	LoginStatusSuccess = 0
	// LoginStatusTOTPNeeded - пароль принят, сервис ждет одноразовый код
	LoginStatusTOTPNeeded = 6
)

// LoginResponse - ответ обоих login endpoint-ов
type LoginResponse struct {
	SessionID  string `json:"sessionId"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Locale     string `json:"locale,omitempty"`
}

// ErrorResponse - стандартное тело ошибки сервиса
type ErrorResponse struct {
	Errors []APIError `json:"errors"`
}

// APIError - один элемент списка ошибок
type APIError struct {
	Text           string `json:"text"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}
