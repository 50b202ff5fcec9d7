// Package attendance parses attendance service flags and launches the service.
package attendance

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/rollcall-app/rollcall/internal/platform/cmd"
	server "github.com/rollcall-app/rollcall/internal/services/attendance/app"
)

// Config holds attendance command configuration.
type Config struct {
	HTTPAddr        string        `env:"ROLLCALL_ATTENDANCE_HTTP_ADDR" envDefault:":8095"`
	HealthPort      int           `env:"ROLLCALL_ATTENDANCE_HEALTH_PORT" envDefault:"8096"`
	DBPath          string        `env:"ROLLCALL_ATTENDANCE_DB_PATH" envDefault:"data/attendance.db"`
	DirectoryPath   string        `env:"ROLLCALL_ATTENDANCE_DIRECTORY_PATH"`
	SessionDuration time.Duration `env:"ROLLCALL_ATTENDANCE_SESSION_DURATION" envDefault:"5m"`
	ProximityMeters float64       `env:"ROLLCALL_ATTENDANCE_PROXIMITY_METERS" envDefault:"100"`
	QRSigningKey    string        `env:"ROLLCALL_ATTENDANCE_QR_SIGNING_KEY"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The attendance HTTP API address")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The attendance gRPC health port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the attendance SQLite database")
	fs.StringVar(&cfg.DirectoryPath, "directory-path", cfg.DirectoryPath, "Path to the class and student directory JSON file")
	fs.DurationVar(&cfg.SessionDuration, "session-duration", cfg.SessionDuration, "Default session validity window")
	fs.Float64Var(&cfg.ProximityMeters, "proximity-meters", cfg.ProximityMeters, "Maximum scanner distance from the session anchor")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.SessionDuration <= 0 {
		return Config{}, fmt.Errorf("session duration must be positive, got %s", cfg.SessionDuration)
	}
	if cfg.ProximityMeters <= 0 {
		return Config{}, fmt.Errorf("proximity meters must be positive, got %v", cfg.ProximityMeters)
	}
	return cfg, nil
}

// Run starts the attendance service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAttendance, func(context.Context) error {
		srv, err := server.New(server.Config{
			HTTPAddr:        cfg.HTTPAddr,
			HealthAddr:      fmt.Sprintf(":%d", cfg.HealthPort),
			DBPath:          cfg.DBPath,
			DirectoryPath:   cfg.DirectoryPath,
			SessionDuration: cfg.SessionDuration,
			ProximityMeters: cfg.ProximityMeters,
			QRSigningKey:    cfg.QRSigningKey,
		})
		if err != nil {
			return err
		}
		return srv.Serve(ctx)
	})
}
