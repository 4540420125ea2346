package channel

import (
	"net/http"
	"strings"
)

type connectErrorKind int

const (
	kindOther connectErrorKind = iota
	kindAuth
)

// Error-message markers that indicate an authentication failure when the
// transport does not surface a structured status.
var authErrorTerms = []string{"auth", "unauthorized", "jwt", "token"}

// classifyConnectError decides whether a failed handshake was an
// authentication rejection. The handshake HTTP status is authoritative when
// present; the substring match below is a compatibility shim for transports
// that only surface an opaque error string, not a long-term contract.
func classifyConnectError(err error, resp *http.Response) connectErrorKind {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return kindAuth
		}
	}

	if err != nil {
		msg := strings.ToLower(err.Error())
		for _, term := range authErrorTerms {
			if strings.Contains(msg, term) {
				return kindAuth
			}
		}
	}

	return kindOther
}
