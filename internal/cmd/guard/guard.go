// Package guard parses guard command flags and runs the guard service.
package guard

import (
	"context"
	"flag"
	"strings"

	entrypoint "github.com/omnisign/sessionguard/internal/platform/cmd"
	server "github.com/omnisign/sessionguard/internal/services/guard/app"
)

// Config holds guard command configuration.
type Config struct {
	server.Config
}

// ParseConfig loads env defaults and then applies flags.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg.Config); err != nil {
		return Config{}, err
	}

	origins := strings.Join(cfg.AllowedOrigins, ",")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The guard HTTP server address")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "Storage backend (sqlite or memory)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the guard SQLite database")
	fs.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "Key-space namespace")
	fs.StringVar(&origins, "allowed-origins", origins, "Comma-separated CORS origins")
	fs.BoolVar(&cfg.RequireCurrentPIN, "require-current-pin", cfg.RequireCurrentPIN, "Require the current PIN to change it")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.AllowedOrigins = splitList(origins)
	return cfg, nil
}

// Run starts the guard server.
func Run(ctx context.Context, cfg Config) error {
	return server.Run(ctx, cfg.Config)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
