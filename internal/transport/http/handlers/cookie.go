package handlers

import (
	"net/http"
	"time"
)

// Cookie — параметры refresh-cookie.
type Cookie struct {
	Name   string
	Domain string
	// Secure включает Secure и SameSite=None (prod); иначе SameSite=Lax.
	Secure bool
}

func (c Cookie) base() *http.Cookie {
	ck := &http.Cookie{
		Name:     c.Name,
		Domain:   c.Domain,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.Secure {
		ck.SameSite = http.SameSiteNoneMode
	}

	return ck
}

// setRefreshCookie кладёт refresh-токен в cookie со сроком до абсолютного
// истечения сессии.
func (h *Handlers) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	ck := h.cookie.base()
	ck.Value = token
	ck.Expires = expiresAt.UTC()

	maxAge := int(expiresAt.Sub(h.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	ck.MaxAge = maxAge

	http.SetCookie(w, ck)
}

// clearRefreshCookie удаляет cookie с теми же атрибутами, что и при установке.
func (h *Handlers) clearRefreshCookie(w http.ResponseWriter) {
	ck := h.cookie.base()
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0).UTC()

	http.SetCookie(w, ck)
}

// refreshToken читает refresh-токен из cookie; пустая строка — cookie нет.
func (h *Handlers) refreshToken(r *http.Request) string {
	ck, err := r.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}

	return ck.Value
}
