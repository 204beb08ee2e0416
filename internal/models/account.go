package models

// AccountConfig — конфигурация аккаунта, которую сервис отдает после логина.
// Содержит базовые URL всех сервисов; они меняются между окружениями,
// поэтому клиент всегда берет их отсюда, а не из констант.
type AccountConfig struct {
	ClientID            int    `json:"clientId"`
	SessionID           string `json:"sessionId"`
	TradingURL          string `json:"tradingUrl"`
	PaURL               string `json:"paUrl"`
	ProductSearchURL    string `json:"productSearchUrl"`
	ProductTypesURL     string `json:"productTypesUrl"`
	ReportingURL        string `json:"reportingUrl"`
	CompaniesServiceURL string `json:"companiesServiceUrl"`
	LoginURL            string `json:"loginUrl"`
	VwdQuotecastURL     string `json:"vwdQuotecastServiceUrl"`
}

// ClientInfo — данные клиента из personal account сервиса.
// intAccount — идентификатор, под которым namespace-ятся все торговые запросы.
type ClientInfo struct {
	ID                 int      `json:"id"`
	IntAccount         int      `json:"intAccount"`
	Username           string   `json:"username"`
	DisplayName        string   `json:"displayName"`
	Email              string   `json:"email"`
	Locale             string   `json:"locale"`
	Language           string   `json:"language"`
	Culture            string   `json:"culture"`
	ClientRole         string   `json:"clientRole"`
	ContractType       string   `json:"contractType"`
	LoggedInPersonID   int      `json:"loggedInPersonId"`
	CanUpgrade         bool     `json:"canUpgrade"`
	BaseCurrency       Currency `json:"-"`
	BaseCurrencyString string   `json:"baseCurrency"`
}
