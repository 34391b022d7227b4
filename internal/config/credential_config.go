package config

import "time"

const (
	CredentialBackendMemory = "memory"
	CredentialBackendFile   = "file"
	CredentialBackendRedis  = "redis"
)

type Credentials struct{}

var _ CredentialConfig = Credentials{}

func (Credentials) GetCredentialBackend() string {
	return GetEnv("CREDENTIAL_BACKEND", CredentialBackendFile)
}

// GetCredentialSecret seals file-backed credentials at rest when set
func (Credentials) GetCredentialSecret() string {
	return GetEnv("CREDENTIAL_SECRET", "")
}

func (Credentials) GetCredentialTTL() time.Duration {
	return GetEnvDuration("CREDENTIAL_TTL", 7*24*time.Hour)
}

func (Credentials) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Credentials) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Credentials) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}
