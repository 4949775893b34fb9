package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/sallowayma-git/IELTS-practice-sub003/internal/i18n"
)

const adminUsername = "admin"

// requireAdmin is middleware that checks HTTP basic credentials against the
// configured admin password hash.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminHash == nil {
			slog.Warn("admin route requested but admin password is not set", "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, errorBody{Error: appI18n.T(r.Context(), "AdminDisabled")})
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok || !h.checkAdmin(username, password) {
			slog.Warn("admin authentication failed", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="practice", charset="UTF-8"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: appI18n.T(r.Context(), "Unauthorized")})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) checkAdmin(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(adminUsername)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passOK := bcrypt.CompareHashAndPassword(h.adminHash, []byte(password)) == nil
	return userOK && passOK
}
