package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/tutorhub/internal/authkit"
)

// HandleWhoAmI returns the identity the gate resolved for this request.
func HandleWhoAmI(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		identity, found := authkit.IdentityFromContext(contextGin)
		if !found {
			logger.Warn("missing identity on context",
				zap.String("code", "api.me.missing_identity"))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"id":    identity.ID,
			"email": identity.Email,
			"role":  identity.Role,
		})
	}
}

// HandleAdminStats serves the auth event counters. Mounted behind
// RequireRole(ADMIN); the wider analytics aggregation lives outside this core.
func HandleAdminStats(metrics *authkit.CounterMetrics) gin.HandlerFunc {
	if metrics == nil {
		panic("metrics recorder is required")
	}
	return func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"counters": metrics.Snapshot()})
	}
}

// HandleTutorListing is the placeholder for the tutor catalogue; the CRUD
// layer replaces it. It exists so every role has a protected route to hit.
func HandleTutorListing() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"tutors": []gin.H{}})
	}
}
