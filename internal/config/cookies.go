package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoVerifier = errors.New("identity verification is not configured")

type Cookies struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	jwt      *JWT
}

type PlayerClaims struct {
	PlayerId int64  `json:"player_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// NewCookies reads cookie attributes from the environment. A nil verifier
// means no identity provider is configured and every request is a guest.
func NewCookies(verifier *JWT) (*Cookies, error) {
	cookies := &Cookies{
		Domain:   os.Getenv("COOKIES_DOMAIN"),
		Secure:   os.Getenv("COOKIES_SECURE") != "0",
		SameSite: http.SameSiteLaxMode,
		jwt:      verifier,
	}

	if sameSiteStr, ok := os.LookupEnv("COOKIES_SAMESITE"); ok {
		switch strings.ToUpper(sameSiteStr) {
		case "DEFAULT":
			cookies.SameSite = http.SameSiteDefaultMode
		case "LAX":
			cookies.SameSite = http.SameSiteLaxMode
		case "STRICT":
			cookies.SameSite = http.SameSiteStrictMode
		case "NONE":
			cookies.SameSite = http.SameSiteNoneMode
		default:
			return nil, fmt.Errorf("unknown COOKIES_SAMESITE value %q", sameSiteStr)
		}
	}

	return cookies, nil
}

func (c *Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{"auth", "sign"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Path:     "/",
			Value:    "delete",
			MaxAge:   -1,
			HttpOnly: name == "sign",
			Domain:   c.Domain,
			Secure:   c.Secure,
			SameSite: c.SameSite,
		})
	}
}

// ParsePlayerClaims verifies the token split across the "auth" (header and
// payload) and "sign" (signature) cookies.
func (c *Cookies) ParsePlayerClaims(r *http.Request) (*PlayerClaims, error) {
	if c.jwt == nil {
		return nil, ErrNoVerifier
	}
	authCookie, err := r.Cookie("auth")
	if err != nil {
		return nil, err
	}
	signCookie, err := r.Cookie("sign")
	if err != nil {
		return nil, err
	}
	token, err := c.jwt.ParseWithClaims(
		authCookie.Value+"."+signCookie.Value, &PlayerClaims{},
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*PlayerClaims)
	if !ok {
		return nil, fmt.Errorf("malformed claims")
	}
	return claims, nil
}
