package config

import "time"

type SecurityConfig interface {
	GetMaxSessionIdle() time.Duration
	GetSessionCookieMaxAge() time.Duration
	GetSecureCookies() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetMaxSessionIdle is how long an unused browser session stays in memory before it is disposed
func (Security) GetMaxSessionIdle() time.Duration {
	return GetEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
}

func (Security) GetSessionCookieMaxAge() time.Duration {
	return GetEnvDuration("SESSION_COOKIE_MAX_AGE", 7*24*time.Hour)
}

func (Security) GetSecureCookies() bool {
	return GetEnvBool("SECURE_COOKIES", false)
}
