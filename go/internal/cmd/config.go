package main

import (
	"os"
	"strings"
	"time"

	"github.com/mcdev12/typerace/go/internal/race/config"
	"github.com/mcdev12/typerace/go/internal/race/gateway"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func allowedOrigins() []string {
	raw := getEnv("ALLOWED_ORIGINS", "*")
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// gatewayConfig maps the YAML gateway section and NATS_URL onto the gateway.
func gatewayConfig(cfg config.Gateway) gateway.Config {
	gw := gateway.DefaultConfig()
	gw.ConnectionConfig.MaxMessageSize = cfg.MaxMessageSize
	gw.ConnectionConfig.SendBuffer = cfg.SendBuffer
	gw.Notifications.StreamName = cfg.NotifyStream
	gw.Notifications.SubjectFilter = cfg.NotifySubject
	// no NATS_URL, no notifications
	gw.Notifications.URL = os.Getenv("NATS_URL")
	return gw
}

const shutdownTimeout = 10 * time.Second
