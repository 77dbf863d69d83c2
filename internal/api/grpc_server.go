package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"shareit/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check service name reported for the lending API.
const ServiceName = "shareit.v1.Lending"

// GRPCServer serves the standard health service, reflecting store health.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	check    func(ctx context.Context) error
	log      zerolog.Logger
}

func NewGRPCServer(cfg config.APIConfig, check func(ctx context.Context) error, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	unary := ChainUnaryInterceptors(
		RecoveryUnaryInterceptor(logger),
		LoggingUnaryInterceptor(logger),
		NewAuthInterceptor(cfg).Unary(),
	)

	serverOpts := []grpc.ServerOption{grpc.UnaryInterceptor(unary)}
	if cfg.GRPC.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.GRPC.TLS)
		if err != nil {
			_ = lis.Close()
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	grpcServer := grpc.NewServer(serverOpts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	return &GRPCServer{
		server:   grpcServer,
		health:   healthServer,
		listener: lis,
		check:    check,
		log:      logger.With().Str("component", "grpc").Logger(),
	}, nil
}

func buildTLSConfig(cfg config.APITLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("grpc tls enabled but cert_file/key_file not set")
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load grpc tls keypair: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.RequireClientCert {
		if cfg.ClientCAFile == "" {
			return nil, fmt.Errorf("grpc tls require_client_cert=true but client_ca_file not set")
		}
		caPEM, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("read client_ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse client_ca_file PEM")
		}
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		tlsCfg.ClientCAs = pool
	}

	return tlsCfg, nil
}

func (s *GRPCServer) Addr() string {
	return s.listener.Addr().String()
}

// Refresh runs the health check once and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) {
	state := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		if err := s.check(ctx); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			state = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", state)
	s.health.SetServingStatus(ServiceName, state)
}

// WatchHealth refreshes the health status every interval until ctx is done.
func (s *GRPCServer) WatchHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}
