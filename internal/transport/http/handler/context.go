package handler

import (
	"github.com/gin-gonic/gin"

	"datasteward/internal/model"
	"datasteward/internal/pkg/jwtutil"
	"datasteward/internal/transport/http/middleware"
)

// ProfileLookup resolves the signed-in user behind a token.
type ProfileLookup interface {
	CurrentUser(userID uint) (model.Profile, error)
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func getClaimsFromContext(c *gin.Context) (*jwtutil.Claims, bool) {
	claimsAny, exists := c.Get(middleware.ContextClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := claimsAny.(*jwtutil.Claims)
	return claims, ok
}
