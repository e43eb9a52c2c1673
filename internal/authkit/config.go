package authkit

import "time"

// ServerConfig configures token issuance and session lifetimes.
type ServerConfig struct {
	AccessSigningKey []byte
	AccessIssuer     string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
}
