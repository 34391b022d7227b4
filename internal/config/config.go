package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	APIConfig
	CredentialConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetBaseURL() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// APIConfig describes the remote data service the portal is a client of.
type APIConfig interface {
	GetAPIBaseURL() string
	GetLoginEndpoint() string
	GetRefreshEndpoint() string
	GetProfileEndpoint() string
	GetPasswordEndpoint() string
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetProfileTimeout() time.Duration
}

// CredentialConfig selects where per-session credentials are persisted.
type CredentialConfig interface {
	GetCredentialBackend() string
	GetCredentialSecret() string
	GetCredentialTTL() time.Duration
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type mainConfig struct {
	EnvVars
	Cors
	API
	Credentials
	Security
}

func New() Config {
	return mainConfig{}
}
