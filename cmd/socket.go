package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foomo/snippetserver/pkg/handler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

func NewSocketCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "socket",
		Short: "Start socket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := zap.L()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := newRepo(ctx, v, l.Named("inst.repo"))
			if err != nil {
				return fmt.Errorf("failed to create repo: %w", err)
			}
			defer func() {
				if err := r.Close(); err != nil {
					l.Warn("failed to close repo", zap.Error(err))
				}
			}()

			// create socket server
			handle := handler.NewSocket(l.Named("inst.handler"), r,
				handler.SocketWithMaxRequestLength(maxRequestLengthFlag(v)),
			)

			// listen on socket
			ln, err := net.Listen("tcp", addressFlag(v))
			if err != nil {
				return err
			}
			if maxConnections := maxConnectionsFlag(v); maxConnections > 0 {
				ln = netutil.LimitListener(ln, maxConnections)
			}

			l.Info("started listening", zap.String("address", ln.Addr().String()))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				<-gctx.Done()
				return ln.Close()
			})
			g.Go(func() error {
				return acceptLoop(gctx, l, ln, func(conn net.Conn) {
					// a goroutine handles conn so that the loop can accept other connections
					g.Go(func() error {
						serveConn(gctx, l, handle, conn)
						return nil
					})
				})
			})
			return g.Wait()
		},
	}

	flags := cmd.Flags()
	addAddressFlag(flags, v, "127.0.0.1:8081")
	addMaxConnectionsFlag(flags, v)
	addMaxRequestLengthFlag(flags, v)
	addRepoFlags(flags, v)

	return cmd
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// acceptLoop hands every accepted connection to serve until ln is closed.
// Failing accepts, e.g. when running out of file descriptors, are retried
// with a growing delay.
func acceptLoop(ctx context.Context, l *zap.Logger, ln net.Listener, serve func(conn net.Conn)) error {
	var delay time.Duration
	for {
		// this blocks until connection or error
		conn, err := ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		} else if err != nil {
			if delay == 0 {
				delay = minAcceptDelay
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			l.Error("could not accept connection", zap.Error(err), zap.Duration("retry", delay))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		serve(conn)
	}
}

func serveConn(ctx context.Context, l *zap.Logger, handle *handler.Socket, conn net.Conn) {
	l.Debug("accepted connection", zap.String("source", conn.RemoteAddr().String()))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// unblocks the pending read in Serve
			_ = conn.Close()
		case <-done:
		}
	}()

	handle.Serve(ctx, conn)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		l.Warn("failed to close connection", zap.Error(err))
	}
}
