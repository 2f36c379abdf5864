package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type Auth interface {
	// Middleware пропускает только запросы с действующим bearer токеном
	Middleware(h http.HandlerFunc) http.HandlerFunc
	IssueToken(subject string, ttl time.Duration) (string, error)
}

// HeaderSubjectKey - заголовок, в который middleware пишет владельца токена
const HeaderSubjectKey = "X-Admin-Subject"

const issuer = "paywebhook"

var (
	ErrNoSecret     = errors.New("admin secret is not configured")
	ErrNoToken      = errors.New("no bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type auth struct {
	secret []byte
	now    func() time.Time
}

func NewAuth(secret string) Auth {
	return &auth{secret: []byte(secret), now: time.Now}
}

func (a *auth) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrNoSecret
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// получение владельца токена
		subject, err := a.getSubject(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем
		r.Header.Set(HeaderSubjectKey, subject)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

func (a *auth) getSubject(r *http.Request) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrNoSecret
	}

	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return "", ErrNoToken
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Issuer != issuer || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
