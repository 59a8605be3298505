package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voxbridge/callengine/internal/apperrors"
)

// bearerAuth checks the Authorization header against the configured API
// key (spec §6.5 API_KEY, §7 AuthFailure). An empty apiKey disables the
// check; config validation rejects an unset API_KEY, so the server binary
// never passes an empty one.
func bearerAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || token != apiKey {
			err := apperrors.New(apperrors.KindUnauthorized, "api.auth", nil)
			c.AbortWithStatusJSON(apperrors.HTTPStatus(err), apperrors.ToEnvelope(err))
			return
		}
		c.Next()
	}
}
