// ABOUTME: Entry point for the smsrelay server
// ABOUTME: Relays SMS conversations into chat threads and back

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/smsrelay/internal/config"
	"github.com/2389/smsrelay/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                _
  ___ _ __ ___  ___ _ __ ___| | __ _ _   _
 / __| '_ ' _ \/ __| '__/ _ \ |/ _' | | | |
 \__ \ | | | | \__ \ | |  __/ | (_| | |_| |
 |___/_| |_| |_|___/_|  \___|_|\__,_|\__, |
                                     |___/
`

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(config.DefaultPath(), os.Stdout)
	case "health":
		err = runHealth(ctx, "/health")
	case "ready":
		err = runHealth(ctx, "/health/ready")
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: smsrelay <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                     Start the relay")
	fmt.Fprintln(w, "  init                      Write an example config file")
	fmt.Fprintln(w, "  health                    Check liveness of a running relay")
	fmt.Fprintln(w, "  ready                     Check readiness of a running relay")
	fmt.Fprintln(w, "  version                   Print the version")
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Transport: %s\n", cfg.Transport.Provider)
	green.Print("    ▶ ")
	if cfg.Matrix.Enabled {
		fmt.Printf("Chat:      matrix (%s)\n", cfg.Matrix.UserID)
	} else {
		fmt.Print("Chat:      ")
		yellow.Println("disabled")
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! REST API disabled (auth.jwt_secret not set)")
	}
	fmt.Println()

	logger.Info("starting smsrelay",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"transport", cfg.Transport.Provider,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// runInit writes the example config unless one already exists.
func runInit(path string, out io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.ExampleYAML), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "Config written to %s\n", path)
	fmt.Fprintln(out, "\nEdit it, then start the relay:")
	fmt.Fprintln(out, "  smsrelay serve")
	return nil
}

func runHealth(ctx context.Context, path string) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return checkHealth(ctx, "http://"+cfg.Server.HTTPAddr+path, os.Stdout)
}

func checkHealth(ctx context.Context, url string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}
	fmt.Fprintln(out, string(body))
	return nil
}
