package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service bundles the connection manager, the WebSocket routes and the
// notification consumer.
type Service struct {
	connectionManager *ConnectionManager
	notifications     *NotificationConsumer
	config            Config
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// Notifications is skipped when URL is empty.
	Notifications NotificationConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Notifications:    DefaultNotificationConfig(),
	}
}

func NewService(config Config) (*Service, error) {
	s := &Service{
		connectionManager: NewConnectionManager(config.ConnectionConfig),
		config:            config,
	}

	if config.Notifications.URL != "" {
		consumer, err := NewNotificationConsumer(s.connectionManager, config.Notifications)
		if err != nil {
			return nil, fmt.Errorf("failed to create notification consumer: %w", err)
		}
		s.notifications = consumer
	}
	return s, nil
}

// Connections is the notifier handed to the race engine.
func (s *Service) Connections() *ConnectionManager {
	return s.connectionManager
}

// Start runs delivery and the notification consumer until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting race gateway")

	go s.connectionManager.Start(ctx)

	if s.notifications != nil {
		go func() {
			if err := s.notifications.Start(ctx); err != nil {
				log.Error().Err(err).Msg("notification consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("race gateway shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if s.notifications != nil {
		if err := s.notifications.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop notification consumer")
		}
	}
	return nil
}

// RegisterRoutes mounts /ws/race and /ws/stats, dispatching client commands to engine.
func (s *Service) RegisterRoutes(mux *http.ServeMux, engine Engine) {
	NewWebSocketHandler(s.connectionManager, NewDispatcher(engine)).RegisterRoutes(mux)
	log.Info().Msg("race gateway routes registered")
}
