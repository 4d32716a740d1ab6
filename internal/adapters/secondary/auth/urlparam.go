package auth

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

// URLParameter implements the query-string auth style: the
// credential itself lives in the URL, so Apply has nothing to do to the
// request beyond what BuildURL already produced.
type URLParameter struct {
	// TokenParam is the query key the credential's "token" secret is
	// written under, e.g. "token" or "apikey".
	TokenParam string
}

// Apply is a no-op: URL-parameter auth carries its credential in the URL
// built by BuildURL, not in request headers.
func (URLParameter) Apply(req *http.Request, creds domain.Credentials) error {
	return nil
}

// BuildURL appends the token under TokenParam plus any caller-supplied
// query parameters.
func (u URLParameter) BuildURL(base string, creds domain.Credentials, query map[string]string) (string, error) {
	token, ok := creds.Secrets["token"]
	if !ok || token == "" {
		return "", domain.NewAuthFailureError("url parameter token credential missing", nil)
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", domain.NewValidationError(fmt.Sprintf("invalid base URL: %s", base), err)
	}

	q := parsed.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	param := u.TokenParam
	if param == "" {
		param = "token"
	}
	q.Set(param, token)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

var _ ports.AuthStrategy = URLParameter{}
