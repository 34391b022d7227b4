package config

import "time"

type API struct{}

var _ APIConfig = API{}

func (API) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8000/api")
}

func (API) GetLoginEndpoint() string {
	return GetEnv("API_LOGIN_ENDPOINT", "/token/")
}

func (API) GetRefreshEndpoint() string {
	return GetEnv("API_REFRESH_ENDPOINT", "/token/refresh/")
}

func (API) GetProfileEndpoint() string {
	return GetEnv("API_PROFILE_ENDPOINT", "/auth/profile/")
}

func (API) GetRequestTimeout() time.Duration {
	return GetEnvDuration("API_REQUEST_TIMEOUT", 30*time.Second)
}

// GetRefreshTimeout bounds the token refresh call; a timeout counts as a failed refresh.
func (API) GetRefreshTimeout() time.Duration {
	return GetEnvDuration("API_REFRESH_TIMEOUT", 10*time.Second)
}

func (API) GetProfileTimeout() time.Duration {
	return GetEnvDuration("API_PROFILE_TIMEOUT", 10*time.Second)
}

func (API) GetPasswordEndpoint() string {
	return GetEnv("API_PASSWORD_ENDPOINT", "/auth/change-password/")
}
