package auth

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

// CookieSession implements the cookie-family auth style: a
// session cookie whose name carries a provider-specific prefix.
type CookieSession struct {
	// NamePrefix is prepended to the cookie name a credential bundle
	// supplies under the "cookie_name" secret, e.g. "clubhouse_".
	NamePrefix string
}

// Apply sets a Cookie header built from the session id and name credentials.
func (c CookieSession) Apply(req *http.Request, creds domain.Credentials) error {
	name, ok := creds.Secrets["cookie_name"]
	if !ok || name == "" {
		return domain.NewAuthFailureError("cookie name credential missing", nil)
	}
	value, ok := creds.Secrets["session_id"]
	if !ok || value == "" {
		return domain.NewAuthFailureError("session id credential missing", nil)
	}

	req.AddCookie(&http.Cookie{Name: c.NamePrefix + name, Value: value})
	return nil
}

// BuildURL is a no-op augmentation for cookie auth: the base URL never
// carries credentials.
func (c CookieSession) BuildURL(base string, creds domain.Credentials, query map[string]string) (string, error) {
	if len(query) == 0 {
		return base, nil
	}
	return appendQuery(base, query)
}

func appendQuery(base string, query map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", domain.NewValidationError(fmt.Sprintf("invalid base URL: %s", base), err)
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ ports.AuthStrategy = CookieSession{}
