// Package auth implements one strategy per CRM authentication style.
package auth

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

// BearerToken implements the token-family auth style: an
// Authorization header plus the appauth query parameter some tee-sheet
// systems additionally require on the URL itself.
type BearerToken struct{}

// Apply adds the Authorization header. Credentials never touch req.URL here.
func (BearerToken) Apply(req *http.Request, creds domain.Credentials) error {
	token, ok := creds.Secrets["token"]
	if !ok || token == "" {
		return domain.NewAuthFailureError("bearer token credential missing", nil)
	}
	req.Header.Set("Authorization", "token "+token)
	return nil
}

// BuildURL appends appauth=<token> alongside any caller-supplied query
// parameters.
func (BearerToken) BuildURL(base string, creds domain.Credentials, query map[string]string) (string, error) {
	token, ok := creds.Secrets["token"]
	if !ok || token == "" {
		return "", domain.NewAuthFailureError("bearer token credential missing", nil)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", domain.NewValidationError(fmt.Sprintf("invalid base URL: %s", base), err)
	}

	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	q.Set("appauth", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

var _ ports.AuthStrategy = BearerToken{}
