package middleware

import (
	"sync"

	"hydrowave/auth"

	"golang.org/x/time/rate"
)

type MiddlewareManager struct {
	auth      *auth.AuthModule
	deviceKey string

	limiterMux sync.Mutex
	limiters   map[string]*rate.Limiter
}

func NewMiddlewareManager(auth *auth.AuthModule, deviceKey string) *MiddlewareManager {
	return &MiddlewareManager{
		auth:      auth,
		deviceKey: deviceKey,
		limiters:  make(map[string]*rate.Limiter),
	}
}
