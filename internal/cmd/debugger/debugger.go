// Package debugger parses debugger service flags and launches the service.
package debugger

import (
	"context"
	"flag"
	"log"
	"time"

	entrypoint "github.com/JohnPiwinski/antlrworks/internal/platform/cmd"
	"github.com/JohnPiwinski/antlrworks/internal/platform/timeouts"
	server "github.com/JohnPiwinski/antlrworks/internal/services/debugger/app"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/session"
)

// Config holds debugger command configuration.
type Config struct {
	Port           int           `env:"DEBUGGER_PORT"            envDefault:"8092"`
	Addr           string        `env:"DEBUGGER_ADDR"`
	RecognizerAddr string        `env:"RECOGNIZER_ADDR"          envDefault:"localhost:49100"`
	DBPath         string        `env:"DEBUGGER_DB_PATH"         envDefault:"data/traces.db"`
	BreakOn        string        `env:"DEBUGGER_BREAK_ON"        envDefault:"consume"`
	Condition      string        `env:"DEBUGGER_BREAK_CONDITION"`
	ConnectTimeout time.Duration `env:"DEBUGGER_CONNECT_TIMEOUT" envDefault:"10s"`
	Autosave       bool          `env:"DEBUGGER_AUTOSAVE"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfigFromArgs(&cfg, fs, args, bindFlags); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The debugger gRPC server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The debugger gRPC listen address (overrides -port)")
	fs.StringVar(&cfg.RecognizerAddr, "recognizer", cfg.RecognizerAddr, "Default recognizer host:port to launch against")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Trace database path")
	fs.StringVar(&cfg.BreakOn, "break-on", cfg.BreakOn, "Comma separated event kinds to break on, or all")
	fs.StringVar(&cfg.Condition, "break-condition", cfg.Condition, "Lua expression a breakpoint must satisfy")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "How long to retry connecting to the recognizer")
	fs.BoolVar(&cfg.Autosave, "autosave", cfg.Autosave, "Store every finished live trace")
}

// Run starts the debugger gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	serverCfg := server.Config{
		DBPath: cfg.DBPath,
		Session: session.Config{
			RecognizerAddr: cfg.RecognizerAddr,
			ConnectTimeout: cfg.ConnectTimeout,
			BreakOn:        cfg.BreakOn,
			Condition:      cfg.Condition,
			Autosave:       cfg.Autosave,
			Logf:           log.Printf,
		},
	}
	if serverCfg.Session.ConnectTimeout <= 0 {
		serverCfg.Session.ConnectTimeout = timeouts.RecognizerConnect
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDebugger, func(ctx context.Context) error {
		if cfg.Addr != "" {
			srv, err := server.NewWithAddr(cfg.Addr, serverCfg)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		}
		return server.Run(ctx, cfg.Port, serverCfg)
	})
}
