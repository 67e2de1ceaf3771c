// Package middleware содержит HTTP middleware для сервиса накопительных целей.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const accountKey contextKey = "account"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 30 * 24 * time.Hour

	// AdminTokenHeader — заголовок с токеном административных маршрутов.
	AdminTokenHeader = "X-Admin-Token"
)

// AuthMiddleware выполняет проверку аутентификации владельца аккаунта по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет адрес аккаунта в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		account, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie устанавливает cookie авторизации для указанного аккаунта.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, account string) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    account + "." + a.sign(account),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(account string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(account))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (string, bool) {
	account, signature, ok := strings.Cut(cookieValue, ".")
	if !ok || account == "" {
		return "", false
	}

	if !hmac.Equal([]byte(signature), []byte(a.sign(account))) {
		return "", false
	}

	return account, true
}

// GetAccountFromContext извлекает адрес аккаунта из контекста запроса.
func GetAccountFromContext(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(accountKey).(string)
	return account, ok
}

// WithAccount возвращает контекст с адресом аккаунта.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AdminOnly пропускает запрос только с верным заголовком X-Admin-Token.
// Пустой token закрывает маршрут полностью.
func AdminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
