package i18n

import "net/http"

// LangCookie holds a per-browser language choice.
const LangCookie = "lang"

// Middleware injects a localizer into every request context. A supported
// ?lang= query value is remembered in a cookie and wins over defaultLang.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(defaultLang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if q := r.URL.Query().Get(LangCookie); Supported(q) {
				http.SetCookie(w, &http.Cookie{Name: LangCookie, Value: q, Path: "/", SameSite: http.SameSiteLaxMode})
				loc = NewLocalizer(q, defaultLang)
			} else if c, err := r.Cookie(LangCookie); err == nil && Supported(c.Value) {
				loc = NewLocalizer(c.Value, defaultLang)
			}
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
