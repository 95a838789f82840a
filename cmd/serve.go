package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mzurita/fototeca/internal/extractor"
	"github.com/mzurita/fototeca/internal/resolver"
	"github.com/mzurita/fototeca/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the gallery web server. The server exposes a JSON API for importing
photos, running face processing jobs, renaming persons and searching faces.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides configuration)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides configuration)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if port, err := cmd.Flags().GetInt("port"); err == nil && port > 0 {
		cfg.Web.Port = port
	}
	if host, err := cmd.Flags().GetString("host"); err == nil && host != "" {
		cfg.Web.Host = host
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}

	ext := extractor.NewHTTPClient(cfg.Extractor.URL)
	res := resolver.New(stores.Meta, stores.Index, cfg.Matching.Threshold)
	server := web.NewServer(stores, res, ext, cfg.Web.Host, cfg.Web.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		if err := stores.Close(); err != nil {
			fmt.Printf("Error closing stores: %v\n", err)
		}
	}()

	fmt.Printf("Starting gallery server on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		stores.Close()
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
