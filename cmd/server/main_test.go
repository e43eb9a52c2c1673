package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func setValidConfig() {
	viper.Set("jwt_signing_key", "test-signing-key")
	viper.Set("access_ttl", 15*time.Minute)
	viper.Set("refresh_ttl", 60*24*time.Hour)
}

func TestLoadServerConfigSuccess(t *testing.T) {
	viper.Reset()
	setValidConfig()

	serverConfig, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(serverConfig.AccessSigningKey) != "test-signing-key" {
		t.Fatalf("unexpected signing key")
	}
	if serverConfig.AccessIssuer != accessTokenIssuer {
		t.Fatalf("unexpected issuer: %s", serverConfig.AccessIssuer)
	}
	if serverConfig.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access TTL: %s", serverConfig.AccessTTL)
	}
	if serverConfig.RefreshTTL != 60*24*time.Hour {
		t.Fatalf("unexpected refresh TTL: %s", serverConfig.RefreshTTL)
	}
}

func TestLoadServerConfigValidation(t *testing.T) {
	testCases := []struct {
		name         string
		mutate       func()
		expectedCode string
	}{
		{
			name:         "missing signing key",
			mutate:       func() { viper.Set("jwt_signing_key", "") },
			expectedCode: configCodeMissingJWTSigningKey,
		},
		{
			name:         "zero access ttl",
			mutate:       func() { viper.Set("access_ttl", time.Duration(0)) },
			expectedCode: configCodeInvalidAccessTTL,
		},
		{
			name:         "negative access ttl",
			mutate:       func() { viper.Set("access_ttl", -time.Minute) },
			expectedCode: configCodeInvalidAccessTTL,
		},
		{
			name:         "zero refresh ttl",
			mutate:       func() { viper.Set("refresh_ttl", time.Duration(0)) },
			expectedCode: configCodeInvalidRefreshTTL,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			viper.Reset()
			setValidConfig()
			testCase.mutate()

			_, err := LoadServerConfig()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), testCase.expectedCode) {
				t.Fatalf("expected code %s in error, got %v", testCase.expectedCode, err)
			}
		})
	}
}

func TestPrepareServerConfigStoresConfigInContext(t *testing.T) {
	viper.Reset()
	setValidConfig()

	command := newRootCommand()
	if err := prepareServerConfig(command, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value := command.Context().Value(serverConfigContextKey)
	if value == nil {
		t.Fatalf("expected server config in command context")
	}
}

func TestRunServerRejectsMissingPreparedConfig(t *testing.T) {
	viper.Reset()
	setValidConfig()
	viper.Set("listen_addr", "127.0.0.1:0")

	command := newRootCommand()
	err := runServer(command, nil)
	if err == nil {
		t.Fatalf("expected error without prepared config")
	}
	if !strings.Contains(err.Error(), configCodeUninitializedServerConf) {
		t.Fatalf("expected uninitialized config code, got %v", err)
	}
}
