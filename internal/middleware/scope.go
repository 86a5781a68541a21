package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/pkg/response"
)

// RequireWebinar allows only viewer tokens issued for the webinar named by the
// path parameter param. It runs after ViewerJWT.
func RequireWebinar(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := c.Get(ContextWebinarID)
		if !ok {
			response.Unauthorized(c, "missing viewer context")
			c.Abort()
			return
		}
		tokenWebinar, _ := val.(uuid.UUID)
		pathWebinar, err := uuid.Parse(c.Param(param))
		if err != nil {
			response.BadRequest(c, "invalid webinar id")
			c.Abort()
			return
		}
		if tokenWebinar != pathWebinar {
			response.Forbidden(c, "token not valid for this webinar")
			c.Abort()
			return
		}
		c.Next()
	}
}
