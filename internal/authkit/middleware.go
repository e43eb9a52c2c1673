package authkit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdentityContextKey is where the gate stores the resolved Identity.
const IdentityContextKey = "auth_identity"

// Gate is the request-boundary interceptor applied to every protected route.
// It verifies the bearer token and re-resolves the user record on each
// request, so a deactivated or deleted account loses access before its access
// token's natural expiry.
type Gate struct {
	configuration ServerConfig
	users         UserStore
	clock         Clock
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// NewGate constructs the authentication gate. Logger and metrics may be nil.
func NewGate(configuration ServerConfig, users UserStore, clock Clock, logger *zap.Logger, metrics MetricsRecorder) *Gate {
	if users == nil {
		panic("gate requires a user store")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Gate{
		configuration: configuration,
		users:         users,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}
}

// RequireAuth validates the bearer access token and injects the Identity.
// Every failure is a uniform 401; the distinguishing detail goes to the log.
func (gate *Gate) RequireAuth() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		tokenString, extractErr := ExtractBearerToken(contextGin.GetHeader("Authorization"))
		if extractErr != nil {
			gate.reject(contextGin, "auth.gate.missing_token", extractErr)
			return
		}
		claims, parseErr := ParseAccessToken(gate.clock, tokenString, gate.configuration.AccessIssuer, gate.configuration.AccessSigningKey)
		if parseErr != nil {
			gate.reject(contextGin, "auth.gate.invalid_token", parseErr)
			return
		}
		user, lookupErr := gate.users.FindUserByID(contextGin, claims.UserID)
		if lookupErr != nil {
			if !errors.Is(lookupErr, ErrUserNotFound) {
				gate.logger.Error("gate store failure",
					zap.String("code", "auth.gate.store_error"),
					zap.String("path", contextGin.Request.URL.Path),
					zap.Error(lookupErr))
				contextGin.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			gate.reject(contextGin, "auth.gate.user_not_found", ErrUserNotFound)
			return
		}
		if !user.Active {
			gate.metrics.Increment(MetricAccountInactive)
			gate.reject(contextGin, "auth.gate.account_inactive", ErrAccountInactive)
			return
		}
		contextGin.Set(IdentityContextKey, Identity{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
		})
		contextGin.Next()
	}
}

func (gate *Gate) reject(contextGin *gin.Context, code string, cause error) {
	gate.metrics.Increment(MetricGateUnauthorized)
	gate.logger.Warn("request rejected by gate",
		zap.String("code", code),
		zap.String("path", contextGin.Request.URL.Path),
		zap.Error(cause))
	contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// IdentityFromContext returns the Identity attached by RequireAuth.
func IdentityFromContext(contextGin *gin.Context) (Identity, bool) {
	value, found := contextGin.Get(IdentityContextKey)
	if !found {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok
}

// RequireRole returns the authorization policy middleware: 401 when no
// identity is on the context, 403 when the caller's role is outside the
// allow-list. It must run after RequireAuth.
func RequireRole(logger *zap.Logger, metrics MetricsRecorder, allowedRoles ...Role) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	allowed := NewRoleSet(allowedRoles...)
	return func(contextGin *gin.Context) {
		identity, ok := IdentityFromContext(contextGin)
		if !ok {
			logger.Warn("policy without identity",
				zap.String("code", "auth.policy.unauthenticated"),
				zap.String("path", contextGin.Request.URL.Path),
				zap.Error(ErrUnauthenticated))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !allowed.Contains(identity.Role) {
			metrics.Increment(MetricPolicyForbidden)
			logger.Warn("role outside allow-list",
				zap.String("code", "auth.policy.forbidden"),
				zap.String("user_id", identity.ID),
				zap.String("role", string(identity.Role)),
				zap.String("path", contextGin.Request.URL.Path))
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		contextGin.Next()
	}
}
