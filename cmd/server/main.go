package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/tutorhub/internal/authkit"
	"github.com/tyemirov/tutorhub/internal/authkitpg"
	"github.com/tyemirov/tutorhub/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tutorhub",
		Short:   "Tutor-marketplace backend with JWT access tokens and rotating refresh sessions",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 60*24*time.Hour, "Refresh session TTL")
	rootCmd.Flags().String("database_url", "", "Database URL for users and sessions (postgres://, sqlite://, or pgx:// for a direct pgx pool; leave empty for in-memory stores)")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("access_ttl", rootCmd.Flags().Lookup("access_ttl"))
	_ = viper.BindPFlag("refresh_ttl", rootCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	accessTokenIssuer = "tutorhub-auth"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates the token configuration from viper.
func LoadServerConfig() (authkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	return authkit.ServerConfig{
		AccessSigningKey: []byte(jwtSigningKey),
		AccessIssuer:     accessTokenIssuer,
		AccessTTL:        accessTTL,
		RefreshTTL:       refreshTTL,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	clock := authkit.NewSystemClock()

	var userStore authkit.UserStore
	var sessionStore authkit.SessionStore

	if strings.HasPrefix(strings.ToLower(databaseURL), "pgx://") {
		pool, poolErr := authkitpg.BuildPool(context.Background(), "postgres://"+databaseURL[len("pgx://"):])
		if poolErr != nil {
			return poolErr
		}
		if schemaErr := authkitpg.EnsureSchema(context.Background(), pool); schemaErr != nil {
			return schemaErr
		}
		sessionStore = authkitpg.NewPostgresSessionStore(pool, clock)
		userStore = authkitpg.NewPostgresUserStore(pool)
		logger.Info("using direct pgx stores")
	} else if databaseURL != "" {
		persistentSessions, storeErr := authkit.NewDatabaseSessionStore(context.Background(), databaseURL, clock)
		if storeErr != nil {
			return storeErr
		}
		persistentUsers, usersErr := web.NewDatabaseUserStore(context.Background(), persistentSessions.DB())
		if usersErr != nil {
			return usersErr
		}
		sessionStore = persistentSessions
		userStore = persistentUsers
		logger.Info("using persistent stores", zap.String("driver", persistentSessions.Driver()))
	} else {
		sessionStore = authkit.NewMemorySessionStore(clock)
		userStore = web.NewMemoryUserStore()
		logger.Info("using in-memory stores")
	}

	metricsRecorder := authkit.NewCounterMetrics()
	authService := authkit.NewAuthService(serverConfig, userStore, sessionStore, clock, logger, metricsRecorder)
	gate := authkit.NewGate(serverConfig, userStore, clock, logger, metricsRecorder)

	authkit.MountAuthRoutes(router, authService, gate)
	router.NoRoute(authkit.NotFoundHandler())

	protected := router.Group("/api")
	protected.Use(gate.RequireAuth())
	protected.GET("/me", web.HandleWhoAmI(logger))
	protected.GET("/tutors", web.HandleTutorListing())

	admin := protected.Group("/admin")
	admin.Use(authkit.RequireRole(logger, metricsRecorder, authkit.RoleAdmin))
	admin.GET("/stats", web.HandleAdminStats(metricsRecorder))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening",
		zap.String("addr", listenAddr),
		zap.Duration("access_ttl", serverConfig.AccessTTL),
		zap.Duration("refresh_ttl", serverConfig.RefreshTTL))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
