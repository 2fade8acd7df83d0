// Package http holds the composition types shared by the clinic API and the
// patient service: App, the Module contract and the router under router/.
package http

import (
	"context"

	"vetclinic_backend/platform/config"
	"vetclinic_backend/platform/logger"
)

// RouterConfig is what the router reads from the service configuration.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker is a dependency /api/health must reach.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by each binary's main and handed to router.New.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  []HealthChecker
	Modules []Module
}
