package authkit

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MountAuthRoutes registers the /api/auth endpoints backed by the service.
// The gate protects only logout-all; the other routes are reachable without a
// bearer token (refresh and logout carry the refresh token in the body).
func MountAuthRoutes(router gin.IRouter, service *AuthService, gate *Gate) {
	group := router.Group("/api/auth")

	group.POST("/register", func(contextGin *gin.Context) {
		var inbound struct {
			FullName string `json:"fullName"`
			Email    string `json:"email"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		role, roleErr := ParseRole(inbound.Role)
		if roleErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_role"})
			return
		}
		created, registerErr := service.Register(contextGin, RegisterInput{
			FullName: inbound.FullName,
			Email:    inbound.Email,
			Password: inbound.Password,
			Role:     role,
		})
		if registerErr != nil {
			switch {
			case errors.Is(registerErr, ErrValidation):
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			case errors.Is(registerErr, ErrEmailTaken):
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email_taken"})
			default:
				contextGin.AbortWithStatus(http.StatusInternalServerError)
			}
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{
			"id":       created.ID,
			"fullName": created.FullName,
			"email":    created.Email,
			"role":     created.Role,
		})
	})

	group.POST("/login", func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Email) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		pair, loginErr := service.Login(contextGin, inbound.Email, inbound.Password, deviceFingerprint(contextGin))
		if loginErr != nil {
			switch {
			case errors.Is(loginErr, ErrAccountInactive):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_inactive"})
			case errors.Is(loginErr, ErrInvalidCredentials):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			default:
				contextGin.AbortWithStatus(http.StatusInternalServerError)
			}
			return
		}
		writeTokenPair(contextGin, pair)
	})

	group.POST("/refresh", func(contextGin *gin.Context) {
		refreshToken, ok := bindRefreshToken(contextGin)
		if !ok {
			return
		}
		pair, refreshErr := service.Refresh(contextGin, refreshToken)
		if refreshErr != nil {
			if errors.Is(refreshErr, ErrInvalidSession) {
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
				return
			}
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		writeTokenPair(contextGin, pair)
	})

	group.POST("/logout", func(contextGin *gin.Context) {
		var inbound struct {
			RefreshToken string `json:"refreshToken"`
		}
		// Logout is never a source of user-visible failure; a missing or
		// garbled body revokes nothing and still returns 200.
		_ = contextGin.ShouldBindJSON(&inbound)
		service.Logout(contextGin, inbound.RefreshToken)
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group.POST("/logout-all", gate.RequireAuth(), func(contextGin *gin.Context) {
		identity, ok := IdentityFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := service.LogoutAll(contextGin, identity.ID); err != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// NotFoundHandler answers unknown API paths with a structured 404.
func NotFoundHandler() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusNotFound, gin.H{
			"error":  "not_found",
			"path":   contextGin.Request.URL.Path,
			"method": contextGin.Request.Method,
		})
	}
}

func bindRefreshToken(contextGin *gin.Context) (string, bool) {
	var inbound struct {
		RefreshToken string `json:"refreshToken"`
	}
	// ShouldBindJSON: a malformed body must not commit a 400 before the
	// uniform 401 below is written.
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.RefreshToken) == "" {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
		return "", false
	}
	return inbound.RefreshToken, true
}

func writeTokenPair(contextGin *gin.Context, pair TokenPair) {
	contextGin.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func deviceFingerprint(contextGin *gin.Context) string {
	userAgent := strings.TrimSpace(contextGin.Request.UserAgent())
	if userAgent == "" {
		return contextGin.ClientIP()
	}
	return userAgent
}
