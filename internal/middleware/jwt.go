package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/virtual-live/internal/auth"
	"github.com/aura-webinar/virtual-live/pkg/response"
)

const (
	// ContextSubjectID is the key for the admitted subject in gin context.
	ContextSubjectID = "subject_id"
	// ContextWebinarID is the key for the webinar the viewer token was issued for.
	ContextWebinarID = "webinar_id"
)

// ViewerJWT validates the viewer token issued by the access endpoint and sets
// its claims in context. The token comes from the Authorization header or,
// for EventSource clients that cannot set headers, the token query parameter.
func ViewerJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "missing viewer token")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextSubjectID, claims.SubjectID)
		c.Set(ContextWebinarID, claims.WebinarID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if q := c.Query("token"); q != "" {
		return q, true
	}
	return "", false
}
