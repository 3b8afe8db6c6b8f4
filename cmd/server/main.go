// Command cv-server starts the CertVault gRPC server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	pb "github.com/and161185/certvault/api/certvault/v1"
	"github.com/and161185/certvault/internal/config"
	"github.com/and161185/certvault/internal/crypto"
	"github.com/and161185/certvault/internal/ledger"
	"github.com/and161185/certvault/internal/limiter"
	"github.com/and161185/certvault/internal/logger"
	"github.com/and161185/certvault/internal/metrics"
	"github.com/and161185/certvault/internal/migrate"
	"github.com/and161185/certvault/internal/repository/postgres"
	grpcserver "github.com/and161185/certvault/internal/server/grpc"
	"github.com/and161185/certvault/internal/service"
	"github.com/and161185/certvault/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves gRPC plus the ops HTTP endpoints.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger settings come from the same config
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogEnv, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.GRPCAddr),
		zap.String("ops_addr", cfg.OpsAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	creds := insecure.NewCredentials()
	if !cfg.Plaintext {
		tc, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return err
		}
		creds = tc
	} else {
		log.Warn("serving without TLS")
	}

	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		return err
	}

	db, err := postgres.New(ctx, cfg.DSN, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer db.Close()

	// Repositories
	principalRepo := postgres.NewPrincipalRepo(db)
	certRepo := postgres.NewCertificateRepo(db)
	lim := limiter.NewPG(db.Pool, cfg.Limiter.Window, cfg.Limiter.MaxFails, cfg.Limiter.BlockFor)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mx := metrics.New(reg)

	// Services
	authSvc := service.NewAuthService(principalRepo, crypto.Argon2id{}, token.NewHS256([]byte(cfg.JWTKey), cfg.AccessTTL),
		lim, cfg.MinSecretLen, log.Named("auth"))
	principalSvc := service.NewPrincipalService(principalRepo, authSvc, log.Named("principals"))
	engine := service.NewCertificateService(certRepo, principalRepo, ledger.NewStub(log.Named("ledger")), log.Named("certificates"))
	access := service.NewCertificateAccess(metrics.NewCertificateService(engine, mx))

	if cfg.Admin.Email != "" {
		created, err := authSvc.BootstrapAdmin(ctx, cfg.Admin.Email, cfg.Admin.Secret, cfg.Admin.Name)
		if err != nil {
			return err
		}
		log.Info("bootstrap admin", zap.Bool("created", created))
	}

	// gRPC server with interceptors
	s := grpc.NewServer(
		grpc.Creds(creds),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(log),
			grpcserver.LoggingUnary(log),
			mx.UnaryServerInterceptor(),
			grpcserver.AuthUnary(authSvc),
		),
	)
	pb.RegisterCertVaultServer(s, grpcserver.New(authSvc, principalSvc, access, log))

	// Health & reflection (dev)
	hs := health.NewServer()
	hs.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Reflection {
		reflection.Register(s)
	}

	ops := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           metrics.NewOpsRouter(reg, db, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", !cfg.Plaintext))
		return s.Serve(lis)
	})
	g.Go(func() error {
		log.Info("ops listening", zap.String("addr", cfg.OpsAddr))
		if err := ops.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		shutdown(s, cfg.ShutdownTimeout)

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return ops.Shutdown(sctx)
	})
	return g.Wait()
}

// shutdown stops s gracefully, forcing it after timeout.
func shutdown(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.Stop()
	}
}
