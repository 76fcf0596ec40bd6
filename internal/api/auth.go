package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/victornm/ehunt/internal/errors"
)

const teamIDKey = "ehunt.team"

// SignTeamToken issues the bearer token the API accepts for a team. Tokens are
// normally issued by the login service, which shares the secret.
func SignTeamToken(secret []byte, teamID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   teamID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// authenticate resolves the bearer token to a team id.
func (a *API) authenticate(c *gin.Context) {
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || raw == "" {
		abortWithError(c, errors.Unauthenticated("missing bearer token"))
		return
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		abortWithError(c, errors.New(errors.CodeUnauthenticated, errors.ReasonUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err),
		))
		return
	}
	if claims.Subject == "" {
		abortWithError(c, errors.Unauthenticated("token has no subject"))
		return
	}

	c.Set(teamIDKey, claims.Subject)
	c.Next()
}

func teamID(c *gin.Context) string {
	return c.GetString(teamIDKey)
}
