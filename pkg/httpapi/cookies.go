package httpapi

import "net/http"

const (
	refreshCookieName = "refresh_token"
	csrfCookieName    = "csrf_token"
	// refreshCookiePath scopes the refresh token to the auth endpoints so
	// it is never sent with ordinary API calls.
	refreshCookiePath = "/api/v1/auth"
)

// setAuthCookies writes the refresh and CSRF cookies: refresh is
// HttpOnly and path-scoped; CSRF is readable by the page so it can be
// echoed back in X-CSRF-Token.
func (s *Server) setAuthCookies(w http.ResponseWriter, refreshToken, csrfToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		Domain:   s.cookies.Domain,
		MaxAge:   int(s.cookies.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: s.cookies.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    csrfToken,
		Path:     "/",
		Domain:   s.cookies.Domain,
		MaxAge:   int(s.cookies.RefreshTTL.Seconds()),
		HttpOnly: false,
		Secure:   s.cookies.Secure,
		SameSite: s.cookies.SameSite,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: refreshCookieName, Value: "", Path: refreshCookiePath,
		Domain: s.cookies.Domain, MaxAge: -1, HttpOnly: true,
		Secure: s.cookies.Secure, SameSite: s.cookies.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name: csrfCookieName, Value: "", Path: "/",
		Domain: s.cookies.Domain, MaxAge: -1,
		Secure: s.cookies.Secure, SameSite: s.cookies.SameSite,
	})
}
