package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware puts the actor of a bearer token into the request context.
// Requests without a token pass through anonymously; permission checks happen
// in the workflow.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		customClaim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || customClaim.ID <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), customClaim.ID)
		ctx = utils.SetUserNameInContext(ctx, customClaim.Name)
		if customClaim.BranchId > 0 {
			ctx = utils.SetBranchIdInContext(ctx, customClaim.BranchId)
		}
		ctx = utils.SetPermissionsInContext(ctx, customClaim.Permissions)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
