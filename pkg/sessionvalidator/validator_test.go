package sessionvalidator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

var (
	testSigningKey = []byte("test-signing-key")
	testIssuer     = "tutorhub-auth"
)

func signTestToken(t *testing.T, issuedAt time.Time, ttl time.Duration, issuer string, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    "user-123",
		UserEmail: "a@x.com",
		UserRole:  "STUDENT",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	return signed
}

func newTestValidator(t *testing.T, clock Clock) *Validator {
	t.Helper()
	validator, err := New(Config{
		SigningKey: testSigningKey,
		Issuer:     testIssuer,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("new validator error: %v", err)
	}
	return validator
}

func TestNewRejectsMissingConfiguration(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Issuer: testIssuer}); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected ErrMissingSigningKey, got %v", err)
	}
	if _, err := New(Config{SigningKey: testSigningKey}); !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected ErrMissingIssuer, got %v", err)
	}
}

func TestValidateTokenAcceptsFreshToken(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, fixedClock{timestamp: reference})
	token := signTestToken(t, reference, 15*time.Minute, testIssuer, testSigningKey)

	claims, err := validator.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.GetUserID() != "user-123" || claims.GetUserEmail() != "a@x.com" || claims.GetUserRole() != "STUDENT" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.GetExpiresAt().IsZero() {
		t.Fatalf("expected expiry accessor to return a timestamp")
	}
}

func TestValidateTokenRejections(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, fixedClock{timestamp: reference})

	if _, err := validator.ValidateToken(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := validator.ValidateToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	expired := signTestToken(t, reference.Add(-time.Hour), 15*time.Minute, testIssuer, testSigningKey)
	if _, err := validator.ValidateToken(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	wrongIssuer := signTestToken(t, reference, 15*time.Minute, "someone-else", testSigningKey)
	if _, err := validator.ValidateToken(wrongIssuer); !errors.Is(err, ErrInvalidIssuer) {
		t.Fatalf("expected ErrInvalidIssuer, got %v", err)
	}

	wrongKey := signTestToken(t, reference, 15*time.Minute, testIssuer, []byte("other-key"))
	if _, err := validator.ValidateToken(wrongKey); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong key, got %v", err)
	}
}

func TestValidateRequestReadsBearerHeader(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, fixedClock{timestamp: reference})
	token := signTestToken(t, reference, 15*time.Minute, testIssuer, testSigningKey)

	request := httptest.NewRequest(http.MethodGet, "/resource", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.GetUserID() != "user-123" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	bare := httptest.NewRequest(http.MethodGet, "/resource", nil)
	if _, err := validator.ValidateRequest(bare); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken without header, got %v", err)
	}

	malformed := httptest.NewRequest(http.MethodGet, "/resource", nil)
	malformed.Header.Set("Authorization", "Basic "+token)
	if _, err := validator.ValidateRequest(malformed); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken for wrong scheme, got %v", err)
	}
}

func TestGinMiddlewareInjectsClaims(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	reference := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, fixedClock{timestamp: reference})
	token := signTestToken(t, reference, 15*time.Minute, testIssuer, testSigningKey)

	router := gin.New()
	router.GET("/resource", validator.GinMiddleware(""), func(contextGin *gin.Context) {
		value, found := contextGin.Get(DefaultContextKey)
		if !found {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		claims := value.(*Claims)
		contextGin.JSON(http.StatusOK, gin.H{"user_id": claims.GetUserID()})
	})

	authorized := httptest.NewRequest(http.MethodGet, "/resource", nil)
	authorized.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authorized)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/resource", nil)
	anonymousRecorder := httptest.NewRecorder()
	router.ServeHTTP(anonymousRecorder, anonymous)
	if anonymousRecorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", anonymousRecorder.Code)
	}
}
