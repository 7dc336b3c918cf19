package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/profile"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server exposes the control service on the profile's Unix socket.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	svc        *api.ControlService
	logger     *zap.Logger
}

// NewServer binds the control socket for the profile, or p.SocketPath when
// set.
func NewServer(p Params, logger *zap.Logger, svc *api.ControlService) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}
	return newServer(socketPath, logger, svc)
}

func newServer(socketPath string, logger *zap.Logger, svc *api.ControlService) (*Server, error) {
	listener, err := listenUnix(socketPath)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(logger)))
	api.Register(srv, svc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		svc:        svc,
		logger:     logger,
	}, nil
}

// listenUnix binds path, replacing a socket left by a daemon that died
// without cleaning up. Only the owner may connect.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("restrict socket: %w", err)
	}
	return ln, nil
}

// logUnary logs failed control calls.
func logUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Debug("control call failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return resp, err
	}
}

// Start serves control calls until Stop.
func (s *Server) Start() error {
	s.logger.Info("control socket serving", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop ends Watch streams, performs a graceful shutdown and removes the socket
// file. Calls still running when ctx ends are cut.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("control socket closing")
	s.svc.Close()
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	_ = os.Remove(s.socketPath)
}
