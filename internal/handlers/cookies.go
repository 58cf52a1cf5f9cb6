package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	rememberTokenCookie = "remember_token"
	rememberUserCookie  = "remember_user"
)

func (h HandlerSet) secure(c *gin.Context) bool {
	return h.cfg.TLS.Enabled || c.Request.TLS != nil
}

func (h HandlerSet) setCookie(c *gin.Context, name, value string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure(c),
		SameSite: http.SameSiteStrictMode,
	}
	if !expires.IsZero() {
		cookie.Expires = expires
		cookie.MaxAge = int(time.Until(expires).Seconds())
	}
	http.SetCookie(c.Writer, cookie)
}

func (h HandlerSet) expireCookie(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(1, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure(c),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h HandlerSet) setSessionCookie(c *gin.Context, id string) {
	h.setCookie(c, h.cfg.Session.CookieName, id, time.Time{})
}

func (h HandlerSet) setRememberCookies(c *gin.Context, token, accountCookie string, expires time.Time) {
	h.setCookie(c, rememberTokenCookie, token, expires)
	h.setCookie(c, rememberUserCookie, accountCookie, expires)
}

func (h HandlerSet) clearRememberCookies(c *gin.Context) {
	h.expireCookie(c, rememberTokenCookie)
	h.expireCookie(c, rememberUserCookie)
}
