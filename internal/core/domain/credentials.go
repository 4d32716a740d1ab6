package domain

// AuthKind selects which auth strategy a membership's credentials are
// applied through.
type AuthKind string

const (
	AuthBearerToken  AuthKind = "bearer_token"
	AuthCookieSession AuthKind = "cookie_session"
	AuthURLParameter  AuthKind = "url_parameter"
)

// Credentials is an opaque secret bundle. It must never be logged, never
// folded into a cache key, and never appear in an error's Message or Code
// — only Secrets values are sensitive;
// AuthKind itself is safe to log.
type Credentials struct {
	AuthKind AuthKind
	Secrets  map[string]string
}

// Redacted returns a map safe to include in logs or error context: it
// holds every secret key with its value replaced by "<redacted>". The
// kind is not included.
func (c Credentials) Redacted() map[string]string {
	keys := make(map[string]string, len(c.Secrets))
	for k := range c.Secrets {
		keys[k] = "<redacted>"
	}
	return keys
}
