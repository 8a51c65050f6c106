package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/marketlink/sellchat/global"
	"github.com/marketlink/sellchat/tools/errs"
)

// Context keys the query service reads after authentication.
const (
	CtxRoleKey = "chatRole"
	CtxIDKey   = "chatEntityId"
)

// Claims carried by access tokens: the subject is the entity id, the role
// claim is "user" or "seller".
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Middleware verifies a Bearer token and resolves (role, id) into the gin
// context. Requests without a valid token are rejected with 401.
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("Authorization"))
		if strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}

		var claims Claims
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !parsed.Valid || !global.IsValidRole(claims.Role) || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}

		c.Set(CtxRoleKey, claims.Role)
		c.Set(CtxIDKey, claims.Subject)
		c.Next()
	}
}

// Identity reads the authenticated (role, id) pair set by Middleware.
func Identity(c *gin.Context) (role, id string, ok bool) {
	role = c.GetString(CtxRoleKey)
	id = c.GetString(CtxIDKey)
	return role, id, role != "" && id != ""
}
