package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/shingolive/internal/client"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	serverAddr string
	authToken  string
	jsonOutput bool

	streamClient client.StreamClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("SHINGO_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("SHINGO_SERVER"); s != "" {
		return s
	}
	if u := activeRemoteGRPC(); u != "" {
		return u
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("SHINGO_AUTH_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:   "shingolive <command>",
	Short: "Live event stream for the Shingo Core dashboard",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if httpURL == "" {
			return fmt.Errorf("--http-url must not be empty")
		}
		streamClient = client.NewHTTPClient(httpURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if streamClient != nil {
			streamClient.Close()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "stream", Title: "Stream:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Stream
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(eventsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
