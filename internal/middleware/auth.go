package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/taskrooms/pkg/auth"
)

const UserIDKey = "userID"

// BlacklistKey is the Redis key marking a token as logged out.
func BlacklistKey(token string) string {
	return "blacklist:" + token
}

// AuthMiddleware проверяет JWT токен из Authorization header
func AuthMiddleware(jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			abortUnauthorized(c, "missing or invalid token")
			return
		}
		authenticate(c, token, jwtManager, redisClient)
	}
}

// WSAuthMiddleware специальный middleware для WebSocket: браузер не может
// передать заголовок, поэтому токен также принимается из ?token=
func WSAuthMiddleware(jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = auth.ExtractTokenFromHeader(c.Request)
		}
		if token == "" {
			abortUnauthorized(c, "missing token")
			return
		}
		authenticate(c, token, jwtManager, redisClient)
	}
}

func authenticate(c *gin.Context, token string, jwtManager *auth.JWTManager, redisClient *redis.Client) {
	if blacklisted(c.Request.Context(), redisClient, token) {
		abortUnauthorized(c, "token is blacklisted")
		return
	}

	userID, err := jwtManager.UserID(token)
	if err != nil {
		abortUnauthorized(c, "invalid token")
		return
	}

	c.Set(UserIDKey, userID)
	c.Next()
}

// blacklisted fails closed: if Redis cannot answer, the token is refused.
func blacklisted(ctx context.Context, redisClient *redis.Client, token string) bool {
	exists, err := redisClient.Exists(ctx, BlacklistKey(token)).Result()
	return err != nil || exists > 0
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "UNAUTHORIZED"})
}
