package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/config"
	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/presence"
	"github.com/alfredjeanlab/shingolive/internal/server"
	"github.com/alfredjeanlab/shingolive/internal/store"
	"github.com/alfredjeanlab/shingolive/internal/store/postgres"
	streamsync "github.com/alfredjeanlab/shingolive/internal/sync"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// healthPollInterval is how often the gRPC health status is refreshed from
// the bus connection state.
const healthPollInterval = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the event stream server",
	GroupID: "system",
	// The server does not talk to another server.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Connect to Postgres when an event log is configured.
		var st store.Store
		if cfg.DatabaseURL != "" {
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
			logger.Info("event log enabled")
		} else {
			logger.Info("event log disabled (SHINGO_DATABASE_URL not set), replay is memory-only")
		}
		closeStore := func() {
			if st == nil {
				return
			}
			if err := st.Close(); err != nil {
				logger.Error("error closing store", "err", err)
			}
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				closeStore()
				return err
			}
			publisher = pub
			logger.Info("bus enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("bus disabled (SHINGO_NATS_URL not set)")
		}

		tracker := presence.New()
		tracker.StartReaper(&presence.ReaperConfig{
			OnStall: func(client, remote string) {
				logger.Warn("stream client stalled", "client", client, "remote", remote)
			},
		})

		srv := server.New(server.Options{
			Store:             st,
			Publisher:         publisher,
			Logger:            logger,
			Presence:          tracker,
			RingBufferSize:    cfg.RingBufferSize,
			KeepaliveInterval: cfg.KeepaliveInterval,
		})
		if err := srv.Restore(ctx); err != nil {
			tracker.Stop()
			publisher.Close()
			closeStore()
			return err
		}

		// Bridge engine bus topics into the stream.
		var (
			sub        *events.NATSSubscriber
			bridge     *server.Bridge
			bridgeDone = make(chan struct{})
		)
		if cfg.NATSURL != "" {
			sub, err = events.NewNATSSubscriber(cfg.NATSURL,
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					logger.Warn("bus disconnected", "err", err)
				}),
				nats.ReconnectHandler(func(nc *nats.Conn) {
					logger.Info("bus reconnected", "url", nc.ConnectedUrl())
				}),
			)
			if err != nil {
				logger.Error("failed to create bus subscriber", "err", err)
			}
		}
		if sub != nil {
			bridge = server.NewBridge(srv, sub)
			go func() {
				defer close(bridgeDone)
				if err := bridge.Run(ctx); err != nil {
					logger.Error("bus bridge stopped", "err", err)
				}
			}()
		} else {
			close(bridgeDone)
		}

		// Start gRPC health listener.
		var grpcServer *grpc.Server
		if cfg.GRPCAddr != "" {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				stop()
				<-bridgeDone
				tracker.Stop()
				publisher.Close()
				closeStore()
				return err
			}
			hs := health.NewServer()
			grpcServer = server.NewGRPCServer(cfg.AuthToken, hs, logger)
			go srv.WatchHealth(ctx, hs, healthPollInterval)
			go func() {
				logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
		}

		// Start HTTP server. Request contexts derive from ctx so open streams
		// end when shutdown begins.
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
				stop()
			}
		}()

		// Start sync scheduler if any destinations are configured.
		var scheduler *streamsync.Scheduler
		if cfg.SyncEnabled() && st != nil {
			if dests := syncDestinations(ctx, cfg, logger); len(dests) > 0 {
				scheduler = streamsync.NewScheduler(st, dests, cfg.SyncInterval, logger)
				scheduler.SetRetention(cfg.SyncRetention)
				scheduler.Start(ctx)
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval, "retention", cfg.SyncRetention)
			}
		}

		logger.Info("shingolive server started",
			"http_addr", cfg.HTTPAddr,
			"grpc_addr", cfg.GRPCAddr,
		)

		// Wait for SIGINT or SIGTERM.
		<-ctx.Done()
		logger.Info("shutting down", "open_streams", tracker.Connected())

		<-bridgeDone
		if sub != nil {
			sub.Close()
			logger.Info("bus bridge stopped", "forwarded", bridge.Forwarded(), "ignored", bridge.Ignored(), "dropped", sub.Dropped())
		}

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		if grpcServer != nil {
			grpcServer.GracefulStop()
			logger.Info("gRPC server stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		tracker.Stop()
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		closeStore()

		logger.Info("shutdown complete")
		return nil
	},
}

// syncDestinations builds the export destinations named in cfg. A
// destination that cannot be created is logged and skipped.
func syncDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []streamsync.Destination {
	var dests []streamsync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := streamsync.NewS3Destination(ctx, streamsync.S3Options{
			Bucket:   cfg.SyncS3Bucket,
			Key:      cfg.SyncS3Key,
			Region:   cfg.SyncS3Region,
			Endpoint: cfg.SyncS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncGitRepo != "" {
		dests = append(dests, streamsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	return dests
}

func init() {
	serveCmd.Flags().Bool("debug", false, "enable debug logging")
}
