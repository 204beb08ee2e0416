package transport

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ribelo/degiro-go/internal/session"
)

// Param - одна пара query-параметра. Порядок пар значим для кодирования.
type Param struct {
	Key   string
	Value string
}

// Request описывает один вызов к сервису: метод, путь, query, тело,
// требуемый уровень аутентификации и флаг мутации. Endpoint-слой строит
// такие значения и отдает их в Executor.
type Request struct {
	Op           string
	Method       string
	URL          string
	Query        []Param
	Body         any
	Headers      map[string]string
	RequiredAuth session.AuthLevel
	// Mutating помечает state-changing запросы: при неоднозначном исходе
	// (timeout после отправки) такие запросы автоматически не ретраятся
	Mutating bool
}

// Get создает read-only GET запрос. По умолчанию требуется полная
// аутентификация; для публичных endpoint-ов используйте NoAuth.
func Get(op, rawURL string) *Request {
	return &Request{
		Op:           op,
		Method:       "GET",
		URL:          rawURL,
		RequiredAuth: session.LevelAuthenticated,
	}
}

// Post создает state-changing POST запрос
func Post(op, rawURL string) *Request {
	return &Request{
		Op:           op,
		Method:       "POST",
		URL:          rawURL,
		RequiredAuth: session.LevelAuthenticated,
		Mutating:     true,
	}
}

// Put создает state-changing PUT запрос
func Put(op, rawURL string) *Request {
	return &Request{
		Op:           op,
		Method:       "PUT",
		URL:          rawURL,
		RequiredAuth: session.LevelAuthenticated,
		Mutating:     true,
	}
}

// Delete создает state-changing DELETE запрос
func Delete(op, rawURL string) *Request {
	return &Request{
		Op:           op,
		Method:       "DELETE",
		URL:          rawURL,
		RequiredAuth: session.LevelAuthenticated,
		Mutating:     true,
	}
}

// WithQuery добавляет query-параметр
func (r *Request) WithQuery(key, value string) *Request {
	r.Query = append(r.Query, Param{Key: key, Value: value})
	return r
}

// WithJSON задает JSON тело запроса
func (r *Request) WithJSON(body any) *Request {
	r.Body = body
	return r
}

// WithHeader добавляет заголовок запроса
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// NoAuth помечает запрос как не требующий аутентификации (сам логин)
func (r *Request) NoAuth() *Request {
	r.RequiredAuth = session.LevelUnauthenticated
	return r
}

// RequireAuth задает требуемый уровень аутентификации
func (r *Request) RequireAuth(level session.AuthLevel) *Request {
	r.RequiredAuth = level
	return r
}

// ReadOnly снимает флаг мутации: запрос безопасно повторять
func (r *Request) ReadOnly() *Request {
	r.Mutating = false
	return r
}

// EncodeQuery собирает query string: каждая пара percent-encoded,
// ключи в стабильном отсортированном порядке (дубликаты сохраняют
// относительный порядок). Одинаковый вход всегда дает одинаковый выход.
func (r *Request) EncodeQuery() string {
	if len(r.Query) == 0 {
		return ""
	}

	params := make([]Param, len(r.Query))
	copy(params, r.Query)
	sort.SliceStable(params, func(i, j int) bool {
		return params[i].Key < params[j].Key
	})

	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}

// fullURL возвращает URL запроса вместе с закодированным query
func (r *Request) fullURL() string {
	q := r.EncodeQuery()
	if q == "" {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + q
}
