package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-assignment-engine/internal/middleware"
	"github.com/noah-isme/sma-assignment-engine/internal/models"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
	"github.com/noah-isme/sma-assignment-engine/pkg/response"
)

func operatorFromContext(c *gin.Context) *models.Operator {
	value, exists := c.Get(middleware.ContextOperatorKey)
	if !exists {
		return nil
	}
	operator, ok := value.(*models.Operator)
	if !ok {
		return nil
	}
	return operator
}

// requireOperator writes 401 and returns false when no operator is attached.
func requireOperator(c *gin.Context) (string, bool) {
	id := operatorFromContext(c).ID()
	if id == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return id, true
}
