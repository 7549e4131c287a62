package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	guardcmd "github.com/omnisign/sessionguard/internal/cmd/guard"
	entrypoint "github.com/omnisign/sessionguard/internal/platform/cmd"
)

func main() {
	if err := entrypoint.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load env: %v", err)
	}
	cfg, err := guardcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[GUARD] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGuard, func(ctx context.Context) error {
		return guardcmd.Run(ctx, cfg)
	}); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
