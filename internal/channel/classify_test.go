package channel

import (
	"errors"
	"net/http"
	"testing"
)

func TestClassifyConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		resp *http.Response
		want connectErrorKind
	}{
		{
			name: "401 handshake status",
			err:  errors.New("websocket: bad handshake"),
			resp: &http.Response{StatusCode: http.StatusUnauthorized},
			want: kindAuth,
		},
		{
			name: "403 handshake status",
			err:  errors.New("websocket: bad handshake"),
			resp: &http.Response{StatusCode: http.StatusForbidden},
			want: kindAuth,
		},
		{
			name: "500 handshake status without auth text",
			err:  errors.New("websocket: bad handshake"),
			resp: &http.Response{StatusCode: http.StatusInternalServerError},
			want: kindOther,
		},
		{
			name: "unauthorized in error text",
			err:  errors.New("dial: Unauthorized"),
			want: kindAuth,
		},
		{
			name: "jwt marker in error text",
			err:  errors.New("invalid JWT signature"),
			want: kindAuth,
		},
		{
			name: "token marker in error text",
			err:  errors.New("expired Token"),
			want: kindAuth,
		},
		{
			name: "plain network failure",
			err:  errors.New("dial tcp: connection refused"),
			want: kindOther,
		},
		{
			name: "nil error and no response",
			want: kindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyConnectError(tt.err, tt.resp); got != tt.want {
				t.Errorf("classifyConnectError() = %v, want %v", got, tt.want)
			}
		})
	}
}
