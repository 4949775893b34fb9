package i18n

import "net/http"

// Middleware injects a localizer into every request context. The locale is
// negotiated from the lang query parameter, then Accept-Language, then
// defaultLang.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	localizers := make(map[string]*Localizer)
	for _, tag := range Supported {
		base, _ := tag.Base()
		localizers[base.String()] = NewLocalizer(base.String())
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := Match(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), defaultLang)
			loc, ok := localizers[lang]
			if !ok {
				loc = NewLocalizer(defaultLang)
			}
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
