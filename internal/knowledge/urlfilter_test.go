package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPublicHTTPURL(t *testing.T) {
	tests := []struct {
		url    string
		public bool
	}{
		{"https://example.com/page", true},
		{"http://example.com", true},
		{"https://en.wikipedia.org/wiki/Go", true},
		{"http://93.184.216.34/", true},

		{"http://127.0.0.1/x", false},
		{"http://localhost:9999", false},
		{"http://10.0.0.5/", false},
		{"http://192.168.1.1/admin", false},
		{"http://172.16.0.1/", false},
		{"http://169.254.169.254/latest/meta-data", false},
		{"http://[::1]/", false},
		{"http://0.0.0.0/", false},
		{"http://224.0.0.1/", false},
		{"http://internal.local/", false},
		{"http://db.prod.internal/", false},

		{"ftp://example.com/file", false},
		{"file:///etc/passwd", false},
		{"not a url", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.public, IsPublicHTTPURL(tt.url))
		})
	}
}
