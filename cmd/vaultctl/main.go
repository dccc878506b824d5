package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	tenancyapp "github.com/odyssee/backend/internal/application/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/auth"
	"github.com/odyssee/backend/internal/infrastructure/config"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/infrastructure/persistence"
	"github.com/odyssee/backend/internal/infrastructure/secrets"
	"github.com/odyssee/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

var (
	errUsage     = errors.New("invalid usage")
	errUnhealthy = errors.New("unreadable credentials found")
)

func main() {
	var (
		logLevel string
		asJSON   bool
	)
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.BoolVar(&asJSON, "json", false, "encrypt: read a JSON object and seal it as a config blob")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, log, args[0], args[1:], asJSON)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		os.Exit(2)
	case errors.Is(err, errUnhealthy):
		os.Exit(3)
	default:
		log.Error("Command failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, command string, args []string, asJSON bool) error {
	vault, err := secrets.NewVault(cfg.Security.MasterEncryptionKey)
	if err != nil {
		return err
	}

	// encrypt never touches the database
	if command == "encrypt" {
		return encrypt(vault, os.Stdin, os.Stdout, asJSON)
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	switch command {
	case "audit":
		credentials := tenancyapp.NewCredentialService(
			persistence.NewGormAgencyRepository(db.DB), vault, telemetry.NopMetrics(), log)
		report, err := credentials.Audit(ctx)
		if err != nil {
			return err
		}
		return printAudit(os.Stdout, report)

	case "token":
		if len(args) < 1 {
			return fmt.Errorf("%w: vaultctl token <seller-id>", errUsage)
		}
		sellerID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("%w: %q is not a seller id", errUsage, args[0])
		}
		seller, err := persistence.NewGormSellerRepository(db.DB).FindByID(ctx, sellerID)
		if err != nil {
			return err
		}
		if !seller.IsActive {
			return fmt.Errorf("seller %s is inactive", seller.Username)
		}
		token, expiresAt, err := auth.NewJWTService(cfg.Security).GenerateAccessToken(auth.GenerateTokenInput{
			AgencyID: seller.AgencyID,
			SellerID: seller.ID,
			Username: seller.Username,
			Role:     seller.Role,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, token)
		log.Info("Access token issued",
			zap.String("seller", seller.Username),
			zap.Time("expires_at", expiresAt))
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, command)
}

// Sealer encrypts values with the platform vault
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	EncryptConfig(cfg map[string]any) (string, error)
}

// encrypt seals the value read from in and writes the blob to out. A plain
// value loses its trailing newline; a JSON value must be an object.
func encrypt(vault Sealer, in io.Reader, out io.Writer, asJSON bool) error {
	data, err := io.ReadAll(bufio.NewReader(in))
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var blob string
	if asJSON {
		var cfg map[string]any
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("%w: input is not a JSON object: %v", errUsage, err)
		}
		if len(cfg) == 0 {
			return fmt.Errorf("%w: empty JSON object", errUsage)
		}
		blob, err = vault.EncryptConfig(cfg)
	} else {
		value := strings.TrimRight(string(data), "\r\n")
		if value == "" {
			return fmt.Errorf("%w: nothing to encrypt on stdin", errUsage)
		}
		blob, err = vault.Encrypt(value)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, blob)
	return err
}

func printAudit(out io.Writer, report *tenancyapp.AuditReport) error {
	fmt.Fprintf(out, "Checked %d agencies, %d stored credentials (%s)\n",
		report.AgenciesChecked, report.BlobsChecked, time.Now().UTC().Format(time.RFC3339))
	if report.Healthy() {
		fmt.Fprintln(out, "All credentials readable")
		return nil
	}
	for _, u := range report.Unreadable {
		fmt.Fprintf(out, "  %-24s %-36s %-20s %s\n", u.Subdomain, u.AgencyID, u.Field, u.Reason)
	}
	return fmt.Errorf("%w: %d", errUnhealthy, len(report.Unreadable))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Odyssée vault tool

Usage:
  vaultctl [flags] <command> [arguments]

Commands:
  audit             Try to open every stored agency credential and list unreadable ones
  encrypt           Encrypt the value read from stdin with the master key
  token <seller-id> Issue an access token for an active seller

Flags:
  -json             encrypt: seal a JSON object as a config blob
  -log-level string Log level: debug, info, warn, error (default: warn)

Exit codes: 0 ok, 1 error, 2 usage, 3 audit found unreadable credentials.
The master key is read from ODYSSEE_SECURITY_MASTER_ENCRYPTION_KEY.`)
}
