// Command admintoken prints a bearer token for the admin API, signed with ADMIN_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aiox-platform/mila/internal/auth"
	"github.com/aiox-platform/mila/internal/config"
)

func main() {
	subject := flag.String("subject", "", "operator name recorded in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if !cfg.Admin.Enabled() {
		slog.Error("ADMIN_JWT_SECRET is not set")
		os.Exit(1)
	}
	if *ttl <= 0 {
		slog.Error("ttl must be positive", "ttl", *ttl)
		os.Exit(1)
	}

	token, err := auth.NewJWTManager(cfg.Admin.JWTSecret, *ttl).Generate(*subject)
	if err != nil {
		slog.Error("generating token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
