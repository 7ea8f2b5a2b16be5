package ratelimit

import "github.com/upb/tasker-auth/config"

const (
	loginMessage   = "Too many login attempts, please try again later."
	refreshMessage = "Too many refresh token requests, please try again later."
	apiMessage     = "Too many requests, please try again later."
)

// Policies groups the allowance for every endpoint class
type Policies struct {
	Login   Policy
	Refresh Policy
	API     Policy
}

// PoliciesFromConfig builds the per-class policies
func PoliciesFromConfig(cfg config.RateLimitConfig) Policies {
	return Policies{
		Login: Policy{
			Class:   ClassLogin,
			Limit:   cfg.LoginLimit,
			Window:  cfg.LoginWindow,
			Message: loginMessage,
		},
		Refresh: Policy{
			Class:   ClassRefresh,
			Limit:   cfg.RefreshLimit,
			Window:  cfg.RefreshWindow,
			Message: refreshMessage,
		},
		API: Policy{
			Class:   ClassAPI,
			Limit:   cfg.APILimit,
			Window:  cfg.APIWindow,
			Message: apiMessage,
		},
	}
}
