package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

const sessionCookieName = "marketwatch_session"

// deriveSessionSecret produces the value stored in the session cookie. It is
// a keyed digest of a fixed label, so every instance with the same password
// accepts the same cookie and nothing needs to persist across restarts.
func deriveSessionSecret(password string) []byte {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte("marketwatch-session-v1"))
	return mac.Sum(nil)
}

// authenticated reports whether the request may see the panel. With no
// password configured, everything is allowed.
func (s *Server) authenticated(r *http.Request) bool {
	if s.adminPassword == "" {
		return true
	}
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	raw, err := hex.DecodeString(cookie.Value)
	if err != nil {
		return false
	}
	return hmac.Equal(raw, s.sessionSecret)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.adminPassword == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	supplied := r.PostFormValue("password")
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.adminPassword)) != 1 {
		s.logger.Warn("Failed login attempt", "remote_addr", r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		s.renderLogin(w, "Incorrect password")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    hex.EncodeToString(s.sessionSecret),
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
