package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

const readinessTimeout = 15 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type subscriptionSource interface {
	pinger
	DomainSubscription() *gcppubsub.Subscriber
}

type notificationConsumer interface {
	Run(ctx context.Context, subscription *gcppubsub.Subscriber) error
}

type ServiceParams struct {
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	PubSub               subscriptionSource
	NotificationConsumer notificationConsumer
}

type dependency struct {
	name string
	ping pinger
}

// Service checks the worker's backing stores and then blocks in the
// notification consumer until the context ends.
type Service struct {
	logg     *logger.Logger
	deps     []dependency
	source   subscriptionSource
	consumer notificationConsumer
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Redis == nil:
		return nil, errors.New("redis client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.NotificationConsumer == nil:
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		logg: p.Logger,
		deps: []dependency{
			{name: "database", ping: p.DB},
			{name: "redis", ping: p.Redis},
			{name: "pubsub", ping: p.PubSub},
		},
		source:   p.PubSub,
		consumer: p.NotificationConsumer,
	}, nil
}

// checkDependencies pings every dependency and reports all failures together.
func (s *Service) checkDependencies(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	var errs error
	for _, dep := range s.deps {
		if err := dep.ping.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", dep.name), "worker dependency unavailable", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", dep.name, err))
		}
	}
	if errs != nil {
		return fmt.Errorf("worker not ready: %w", errs)
	}
	s.logg.Info(ctx, "worker dependencies ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}
	err := s.consumer.Run(ctx, s.source.DomainSubscription())
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "notification consumer stopped", err)
		return err
	}
	s.logg.Info(ctx, "worker shutting down")
	return ctx.Err()
}
