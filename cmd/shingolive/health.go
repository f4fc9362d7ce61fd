package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/client"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the event stream server",
	Long: `Checks GET /v1/health by default. With --grpc the standard gRPC health
service at --server is queried instead; --watch follows it until
interrupted.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		useGRPC, _ := cmd.Flags().GetBool("grpc")
		watch, _ := cmd.Flags().GetBool("watch")
		service, _ := cmd.Flags().GetString("service")
		if watch && !useGRPC {
			return fmt.Errorf("--watch requires --grpc")
		}
		if useGRPC {
			return grpcHealth(cmd, service, watch)
		}

		status, err := streamClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func grpcHealth(cmd *cobra.Command, service string, watch bool) error {
	hc, err := client.NewHealthClient(serverAddr, authToken)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer hc.Close()

	report := func(st healthpb.HealthCheckResponse_ServingStatus) {
		if jsonOutput {
			out, err := client.StatusJSON(st)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error marshaling JSON: %v\n", err)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", st)
	}

	if watch {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return hc.Watch(ctx, service, report)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	st, err := hc.Check(ctx, service)
	if err != nil {
		return fmt.Errorf("checking health: %w", err)
	}
	report(st)
	if st != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("unhealthy: %s", st)
	}
	return nil
}

func init() {
	healthCmd.Flags().Bool("grpc", false, "query the gRPC health service at --server")
	healthCmd.Flags().Bool("watch", false, "follow gRPC health changes")
	healthCmd.Flags().String("service", "", "gRPC health service name (empty = overall)")
}
