package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/typerace/go/internal/history"
	"github.com/mcdev12/typerace/go/internal/race/admin"
	"github.com/mcdev12/typerace/go/internal/race/config"
	"github.com/mcdev12/typerace/go/internal/race/gateway"
	"github.com/mcdev12/typerace/go/internal/race/orchestrator"
	"github.com/mcdev12/typerace/go/internal/texts"
	"github.com/mcdev12/typerace/go/internal/users"
)

type Services struct {
	Users        *users.Service
	Admin        *admin.Service
	Gateway      *gateway.Service
	Orchestrator *orchestrator.Orchestrator
}

func setupServices(pool *pgxpool.Pool, cfg config.Config) (*Services, error) {
	// Database layer → Repository layer → App layer → Service layer

	// Users
	usersApp := users.NewApp(users.NewRepository(pool))
	usersService := users.NewService(usersApp)

	// Race stores
	textsRepo := texts.NewRepository(pool)
	historyRepo := history.NewRepository(pool)

	// Gateway first: it is the orchestrator's notifier
	gw, err := gateway.NewService(gatewayConfig(cfg.Gateway))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	orch := orchestrator.New(cfg.Race, clockwork.NewRealClock(), usersApp, textsRepo, historyRepo, gw.Connections())

	return &Services{
		Users:        usersService,
		Admin:        admin.NewService(orch),
		Gateway:      gw,
		Orchestrator: orch,
	}, nil
}
