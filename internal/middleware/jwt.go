package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/internal/repository"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
	"github.com/noah-isme/sma-assignment-engine/pkg/response"
)

// ContextOperatorKey is the gin context key storing the authenticated operator.
const ContextOperatorKey = "currentOperator"

// Authenticator resolves a bearer token to an operator.
type Authenticator interface {
	Authenticate(token string) (*models.Operator, error)
}

// JWT protects routes by requiring a valid access token. The raw token is
// attached to the request context so calls to the school API act on the
// operator's behalf.
func JWT(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		operator, err := auth.Authenticate(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextOperatorKey, operator)
		c.Request = c.Request.WithContext(repository.WithBearerToken(c.Request.Context(), operator.Token))
		c.Next()
	}
}
