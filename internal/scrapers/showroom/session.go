package showroom

import (
	"net/http"
	"sort"
	"strings"
)

const (
	LocaleCookieName  = "i18n_redirected"
	LocaleCookieValue = "ja"

	UserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"
	AcceptLanguage = "ja,en-US;q=0.9,en;q=0.8"
)

// Session is the authenticated context built from a raw cookie header. It is immutable,
// the cookie jar of the Client built from it is what follows cookie updates.
type Session struct {
	cookies map[string]string
	headers map[string]string
}

// BuildSession parses a raw cookie header ("a=1; b=2") into a Session.
//
// Pairs without '=' or with an empty name are ignored, the last occurrence of a name wins.
// The locale cookie is always forced to Japanese so the page markers stay stable.
func BuildSession(cookieString string) (Session, error) {
	cookies := map[string]string{}
	for _, item := range strings.Split(cookieString, ";") {
		name, value, found := strings.Cut(strings.TrimSpace(item), "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies[name] = strings.TrimSpace(value)
	}
	if len(cookies) == 0 {
		return Session{}, ErrEmptyOrMalformedCookies
	}
	cookies[LocaleCookieName] = LocaleCookieValue

	return Session{
		cookies: cookies,
		headers: map[string]string{
			"User-Agent":      UserAgent,
			"Accept-Language": AcceptLanguage,
		},
	}, nil
}

func (s Session) Cookie(name string) (string, bool) {
	value, ok := s.cookies[name]
	return value, ok
}

// HttpCookies returns the session cookies sorted by name.
func (s Session) HttpCookies() []*http.Cookie {
	names := make([]string, 0, len(s.cookies))
	for name := range s.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*http.Cookie, len(names))
	for i, name := range names {
		out[i] = &http.Cookie{
			Name:  name,
			Value: s.cookies[name],
			Path:  "/",
		}
	}
	return out
}

// Headers returns a copy of the default headers sent with every request.
func (s Session) Headers() map[string]string {
	out := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		out[k] = v
	}
	return out
}
