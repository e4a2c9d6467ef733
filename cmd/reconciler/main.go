package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"payment-reconciliation/internal/config"
	"payment-reconciliation/internal/gateway"
	"payment-reconciliation/internal/logging"
	"payment-reconciliation/internal/usecase"
)

var (
	configPath   string
	outputFormat string
	actor        string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Reconcile gateway payments against event registrations",
		Long: `reconciler links Stripe, Square and imported payments to the registrations
they paid for, scores uncertain candidates, and cleans up payments that were
quarantined at ingestion but later imported successfully.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "Output format (json|yaml)")
	root.PersistentFlags().StringVar(&actor, "actor", "", "Actor recorded in the audit trail")

	root.AddCommand(
		newMatchCmd(),
		newUnmatchCmd(),
		newAnalyzeCmd(),
		newRematchCmd(),
		newDedupeCmd(),
		newImportCSVCmd(),
		newMarkImportedCmd(),
	)
	return root
}

// app is the wired application for one command invocation.
type app struct {
	uc     *usecase.ReconciliationUseCase
	cfg    *config.Config
	logger *slog.Logger
	close  func() error
}

// --- Dependency Injection (Wiring the application) ---
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.Logging)

	var (
		store   usecase.DocumentStore
		closeFn func() error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := gateway.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		store, closeFn = s, s.Close
	case "memory":
		s := gateway.NewMemoryStore()
		if cfg.Store.Path != "" {
			if err := s.LoadSnapshot(cfg.Store.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
		store = s
		closeFn = func() error {
			if cfg.Store.Path == "" {
				return nil
			}
			return s.SaveSnapshot(cfg.Store.Path)
		}
	}

	uc := usecase.NewReconciliationUseCase(store, settings,
		usecase.WithLogger(logger),
		usecase.WithClock(time.Now),
	)
	return &app{uc: uc, cfg: cfg, logger: logger, close: closeFn}, nil
}

// withApp wires the application, runs fn and releases the store even when
// fn fails.
func withApp(fn func(ctx context.Context, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd.Context(), a)
	}
}

// --- Present the Output ---
func printResult(w io.Writer, v any) error {
	switch strings.ToLower(outputFormat) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to generate YAML output: %w", err)
		}
		return enc.Close()
	case "json":
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to generate JSON output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(output))
		return err
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}
