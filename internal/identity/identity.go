// Package identity resolves the current user id for a request. Authentication
// itself happens upstream; this package only reads its result.
package identity

import (
	"net/http"
	"strings"
)

// DefaultHeader is the header an upstream auth proxy sets to the user id.
const DefaultHeader = "X-User-ID"

// Provider reports the current user id, or false when nobody is signed in.
type Provider interface {
	CurrentUserID(r *http.Request) (string, bool)
}

// HeaderProvider trusts a request header written by an auth proxy.
type HeaderProvider struct {
	Header string
}

func NewHeaderProvider(header string) HeaderProvider {
	if strings.TrimSpace(header) == "" {
		header = DefaultHeader
	}
	return HeaderProvider{Header: header}
}

func (p HeaderProvider) CurrentUserID(r *http.Request) (string, bool) {
	header := p.Header
	if header == "" {
		header = DefaultHeader
	}
	id := strings.TrimSpace(r.Header.Get(header))
	if id == "" || strings.ContainsAny(id, "\r\n\t ") {
		return "", false
	}
	return id, true
}

// Static always resolves to the same id. An empty Static is signed out.
type Static string

func (s Static) CurrentUserID(*http.Request) (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}
