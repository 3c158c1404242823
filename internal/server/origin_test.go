package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty list accepts any origin", nil, "https://evil.example", true},
		{"missing origin header", []string{"https://app.example"}, "", true},
		{"allowed origin", []string{"https://app.example"}, "https://app.example", true},
		{"case and trailing slash are normalized", []string{" HTTPS://App.Example/ "}, "https://app.example", true},
		{"path is ignored", []string{"https://app.example"}, "https://app.example/courses", true},
		{"other origin", []string{"https://app.example"}, "https://evil.example", false},
		{"scheme must match", []string{"https://app.example"}, "http://app.example", false},
		{"malformed origin", []string{"https://app.example"}, "app.example", false},
		{"wildcard", []string{"*"}, "https://evil.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/websocket", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, NewOriginChecker(tt.allowed).Check(r))
		})
	}
}
