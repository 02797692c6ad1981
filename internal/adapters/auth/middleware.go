package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/domain"
)

const (
	PrincipalKey = "principal"
	sessionKey   = "user_id"
)

// Middleware admits a request when its token verifies, or when it carries no
// token but its session already holds a verified principal. Browsers cannot
// set headers on a WebSocket upgrade, so the token may also come as ?token=.
// Needs the sessions middleware in front of it.
func Middleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token := tokenFrom(c)

		if token == "" {
			if id, ok := session.Get(sessionKey).(string); ok && id != "" {
				c.Set(PrincipalKey, domain.Principal{UserID: id})
				c.Next()
				return
			}
		}

		p, err := v.Verify(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, ErrAuthUnavailable):
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication unavailable"})
			return
		default:
			log.Warn().Err(err).Str("module", "auth").Str("remote", c.ClientIP()).Msg("rejected terminal client")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if !p.Anonymous() {
			session.Set(sessionKey, p.UserID)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "auth").Msg("save session")
			}
		}
		c.Set(PrincipalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the principal Middleware stored, anonymous if none.
func PrincipalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
		return strings.TrimSpace(h)
	}
	return c.Query("token")
}
