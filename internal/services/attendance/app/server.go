// Package server wires the attendance runtime, its HTTP API and the gRPC
// health endpoint.
package server

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	platformgrpc "github.com/rollcall-app/rollcall/internal/platform/grpc"
	"github.com/rollcall-app/rollcall/internal/platform/httpx"
	"github.com/rollcall-app/rollcall/internal/platform/timeouts"
	attendanceapi "github.com/rollcall-app/rollcall/internal/services/attendance/api/http/attendance"
	"github.com/rollcall-app/rollcall/internal/services/attendance/directory"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/ledger"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/scan"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/token"
	"github.com/rollcall-app/rollcall/internal/services/attendance/feedback"
	"github.com/rollcall-app/rollcall/internal/services/attendance/metrics"
	"github.com/rollcall-app/rollcall/internal/services/attendance/qr"
	attendancesqlite "github.com/rollcall-app/rollcall/internal/services/attendance/storage/sqlite"
)

// HealthService is the gRPC health service name reported by the server.
const HealthService = "rollcall.attendance"

// Config describes one attendance server instance.
type Config struct {
	HTTPAddr        string
	HealthAddr      string
	DBPath          string
	DirectoryPath   string
	SessionDuration time.Duration
	ProximityMeters float64
	// QRSigningKey is a base64 Ed25519 seed. Empty generates an ephemeral key.
	QRSigningKey string
	Clock        func() time.Time
}

// Server hosts the attendance HTTP API, the gRPC health service and the
// storage lifecycle.
type Server struct {
	httpListener   net.Listener
	healthListener net.Listener
	httpServer     *http.Server
	grpcServer     *grpc.Server
	health         *health.Server
	store          *attendancesqlite.Store
}

// New creates a configured attendance server bound to its listeners.
func New(cfg Config) (*Server, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "attendance.db")
	}

	dir, err := directory.Load(cfg.DirectoryPath)
	if err != nil {
		return nil, err
	}
	codec, err := newCodec(cfg.QRSigningKey)
	if err != nil {
		return nil, err
	}

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	healthListener, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		_ = httpListener.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HealthAddr, err)
	}

	store, err := openAttendanceStore(cfg.DBPath)
	if err != nil {
		_ = httpListener.Close()
		_ = healthListener.Close()
		return nil, err
	}

	opts := []session.Option{session.WithDefaultDuration(cfg.SessionDuration)}
	if !dir.Empty() {
		opts = append(opts, session.WithAnchorResolver(dir))
	}
	lifecycle := session.NewLifecycle(store, token.NewIssuer(nil, cfg.Clock, nil), cfg.Clock, opts...)
	records := ledger.New(store, cfg.Clock, nil)
	recorder := metrics.New()

	api, err := attendanceapi.NewHandler(attendanceapi.Deps{
		Sessions:  lifecycle,
		Records:   records,
		Verifier:  scan.NewVerifier(lifecycle, records, cfg.ProximityMeters, cfg.Clock),
		Codec:     codec,
		Directory: dir,
		Metrics:   recorder,
		Feedback:  feedback.LogSink{Logf: log.Printf},
		Clock:     cfg.Clock,
	})
	if err != nil {
		_ = httpListener.Close()
		_ = healthListener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build attendance api: %w", err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := platformgrpc.RegisterHealth(grpcServer, HealthService)

	return &Server{
		httpListener:   httpListener,
		healthListener: healthListener,
		httpServer: &http.Server{
			Handler:           newHTTPHandler(api, recorder, store),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
	}, nil
}

// pinger reports storage readiness.
type pinger interface {
	Ping(ctx context.Context) error
}

func newHTTPHandler(api *attendanceapi.Handler, recorder *metrics.Recorder, store pinger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/", api.Routes())
	mux.Handle(http.MethodGet+" /metrics", recorder.Handler())
	mux.HandleFunc(http.MethodGet+" /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			log.Printf("healthz: %v", err)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return httpx.Chain(mux,
		httpx.RequestID("att"),
		httpx.AccessLog(log.Printf),
		httpx.RecoverPanic(),
	)
}

func newCodec(signingKey string) (*qr.Codec, error) {
	var key ed25519.PrivateKey
	if strings.TrimSpace(signingKey) == "" {
		generated, _, err := qr.GenerateKey(nil)
		if err != nil {
			return nil, err
		}
		log.Printf("qr signing key not configured; using an ephemeral key, issued QR codes stop verifying after restart")
		key = generated
	} else {
		parsed, err := qr.ParseSigningKey(signingKey)
		if err != nil {
			return nil, err
		}
		key = parsed
	}
	return qr.NewCodec(key)
}

// HTTPAddr returns the HTTP listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// HealthAddr returns the gRPC health listener address.
func (s *Server) HealthAddr() string {
	if s == nil || s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Serve runs both listeners until context cancellation or the first failure.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("attendance http listening at %v", s.httpListener.Addr())
	log.Printf("attendance health listening at %v", s.healthListener.Addr())

	httpErr := make(chan error, 1)
	grpcErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()
	go func() {
		grpcErr <- s.grpcServer.Serve(s.healthListener)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown(httpErr, grpcErr)
	case err := <-httpErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-grpcErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

func (s *Server) shutdown(httpErr, grpcErr <-chan error) error {
	s.health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	var errs []error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	s.grpcServer.GracefulStop()

	if err := <-httpErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("serve http: %w", err))
	}
	if err := <-grpcErr; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		errs = append(errs, fmt.Errorf("serve gRPC: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.healthListener != nil {
		_ = s.healthListener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close attendance store: %v", err)
		}
	}
}

func openAttendanceStore(path string) (*attendancesqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := attendancesqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open attendance sqlite store: %w", err)
	}
	return store, nil
}
