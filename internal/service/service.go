// Package service implements the workflow stages of the orchestrator.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidanoel/cognicare-sub000/internal/config"
	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
	"github.com/davidanoel/cognicare-sub000/internal/telemetry"
)

// Gateway performs collaborator calls.
type Gateway interface {
	Call(ctx context.Context, name domain.Collaborator, callerID string, payload interface{}) (*domain.CollaboratorResult, error)
}

// Screener flags intake narratives that mention risk keywords.
type Screener interface {
	Screen(ctx context.Context, narrative string) (bool, error)
}

type Service struct {
	store    store.Store
	gateway  Gateway
	screener Screener
	config   *config.Config
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

func New(store store.Store, gateway Gateway, screener Screener, cfg *config.Config, logger *zap.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		screener: screener,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("cognicare/workflow"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}
