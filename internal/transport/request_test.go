package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ribelo/degiro-go/internal/session"
)

func TestRequest_Constructors(t *testing.T) {
	tests := []struct {
		name       string
		req        *Request
		wantMethod string
		wantMutate bool
	}{
		{"get is read-only", Get("getData", "https://example.com/data"), "GET", false},
		{"post is mutating", Post("placeOrder", "https://example.com/order"), "POST", true},
		{"put is mutating", Put("updateOrder", "https://example.com/order"), "PUT", true},
		{"delete is mutating", Delete("cancelOrder", "https://example.com/order"), "DELETE", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMethod, tt.req.Method)
			assert.Equal(t, tt.wantMutate, tt.req.Mutating)
			assert.Equal(t, session.LevelAuthenticated, tt.req.RequiredAuth)
		})
	}
}

func TestRequest_NoAuth(t *testing.T) {
	req := Post("login", "https://example.com/login").NoAuth()
	assert.Equal(t, session.LevelUnauthenticated, req.RequiredAuth)
}

func TestRequest_EncodeQuery(t *testing.T) {
	tests := []struct {
		name   string
		params []Param
		want   string
	}{
		{
			name: "no params",
			want: "",
		},
		{
			name: "keys sorted",
			params: []Param{
				{"sessionId", "ABC123"},
				{"intAccount", "777"},
			},
			want: "intAccount=777&sessionId=ABC123",
		},
		{
			name: "duplicate keys keep relative order",
			params: []Param{
				{"id", "second"},
				{"aid", "x"},
				{"id", "first"},
			},
			want: "aid=x&id=second&id=first",
		},
		{
			name: "values percent-encoded",
			params: []Param{
				{"q", "a b&c"},
				{"весовой ключ", "значение"},
			},
			want: "q=a+b%26c&%D0%B2%D0%B5%D1%81%D0%BE%D0%B2%D0%BE%D0%B9+%D0%BA%D0%BB%D1%8E%D1%87=%D0%B7%D0%BD%D0%B0%D1%87%D0%B5%D0%BD%D0%B8%D0%B5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Get("op", "https://example.com/")
			req.Query = tt.params
			got := req.EncodeQuery()
			assert.Equal(t, tt.want, got)

			// Тот же вход - тот же выход, порядок детерминирован
			assert.Equal(t, got, req.EncodeQuery())
		})
	}
}

func TestRequest_fullURL(t *testing.T) {
	req := Get("op", "https://example.com/data").
		WithQuery("sessionId", "ABC123")
	assert.Equal(t, "https://example.com/data?sessionId=ABC123", req.fullURL())

	// URL с готовым query дополняется через &
	req = Get("op", "https://example.com/data?v=4").
		WithQuery("sessionId", "ABC123")
	assert.Equal(t, "https://example.com/data?v=4&sessionId=ABC123", req.fullURL())
}
