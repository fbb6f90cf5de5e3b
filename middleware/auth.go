package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityKey = "auth.identity"

var jwtSecret = []byte(getSecret())

func getSecret() string {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return s
	}
	return "your-secret-key-change-in-production"
}

// Identity is the request-scoped authentication context handlers work with
// instead of ambient session state.
type Identity struct {
	UserID int
	Role   string
}

// RequireRole verifies the bearer token (header or cookie for browser pages)
// and attaches the caller's identity to the request. Browser-facing handlers
// get a login redirect on failure, API handlers a JSON 401.
func RequireRole(role string, browser bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			reject(c, browser)
			return
		}

		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			reject(c, browser)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			reject(c, browser)
			return
		}

		userID, _ := claims["user_id"].(float64)
		claimedRole, _ := claims["role"].(string)
		if userID <= 0 || claimedRole != role {
			reject(c, browser)
			return
		}

		c.Set(identityKey, Identity{UserID: int(userID), Role: claimedRole})
		c.Next()
	}
}

// GetIdentity returns the authenticated caller set by RequireRole.
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return Identity{}, false
	}
	identity, ok := v.(Identity)
	return identity, ok
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	// Browser pages carry the token as a cookie
	if cookie, err := c.Cookie("token"); err == nil {
		return cookie
	}
	return ""
}

func reject(c *gin.Context, browser bool) {
	if browser {
		c.Redirect(http.StatusFound, "/login")
	} else {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	c.Abort()
}
