package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/toneloc/ldkboss"
	"github.com/toneloc/ldkboss/internal/config"
	"github.com/toneloc/ldkboss/internal/rpcclient"
	"github.com/toneloc/ldkboss/internal/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ldkboss:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("ldkboss", flag.ContinueOnError)
	configPath := fs.String("config", "ldkboss.toml", "path to the TOML configuration file")
	fs.StringVar(configPath, "c", "ldkboss.toml", "shorthand for -config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := "daemon"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	switch command {
	case "status":
		ldkboss.PrintStatus(st)
		return nil
	case "daemon", "run-once":
		// fall through below, both need a live client
	default:
		return fmt.Errorf("unknown command %q (expected daemon, run-once, or status)", command)
	}

	httpClient, err := buildHTTPClient(cfg.Server.TLSCertPath)
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}
	client := rpcclient.NewHTTPClient(cfg.Server.BaseURL, cfg.Server.APIKey, httpClient)

	daemon := ldkboss.NewDaemon(cfg, client, st)

	switch command {
	case "run-once":
		return daemon.RunOnce(context.Background())
	default:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return daemon.RunDaemon(ctx)
	}
}

// buildHTTPClient constructs the HTTPS client the node server is
// reached through, trusting the configured TLS certificate in addition
// to the system root pool -- the node server typically presents a
// self-signed certificate.
func buildHTTPClient(certPath string) (*http.Client, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	pem, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read tls cert: %w", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("parse tls cert %s: no certificates found", certPath)
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}, nil
}
