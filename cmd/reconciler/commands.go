package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"payment-reconciliation/internal/domain"
	"payment-reconciliation/internal/gateway"
	"payment-reconciliation/internal/usecase"
)

func newMatchCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "match <payment-id>",
		Short: "Find the registration a payment belongs to",
		Long: `Find the registration holding one of the payment's identifiers.
With --confirm the result is written back: the payment becomes matched, or
unmatched when no registration holds any of its identifiers.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Persist the match result")
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		if confirm {
			result, err := a.uc.ConfirmMatch(ctx, cmd.Flags().Arg(0), actor)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		}
		result, err := a.uc.MatchPayment(ctx, cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), result)
	})
	return cmd
}

func newUnmatchCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "unmatch <payment-id>",
		Short: "Clear a payment's stored match",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the payment")
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		cleared, err := a.uc.UnmatchPayment(ctx, cmd.Flags().Arg(0), reason, actor)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]any{"paymentId": cmd.Flags().Arg(0), "cleared": cleared})
	})
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var accept bool
	cmd := &cobra.Command{
		Use:   "analyze <payment-id> [registration-id]",
		Short: "Score how well registrations agree with a payment",
		Long: `Score one payment against one registration, or, without a registration id,
against every registration sharing a payment identifier and report the best.
With --accept the best candidate is confirmed when it reaches the configured
minimum confidence.`,
		Args: cobra.RangeArgs(1, 2),
	}
	cmd.Flags().BoolVar(&accept, "accept", false, "Confirm the best candidate")
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		args := cmd.Flags().Args()
		paymentID := args[0]
		if len(args) == 2 {
			analysis, err := a.uc.AnalyzeMatch(ctx, paymentID, args[1])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), analysis)
		}
		if accept {
			result, err := a.uc.AcceptBestMatch(ctx, paymentID, actor)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		}
		best, ok, err := a.uc.BestMatch(ctx, paymentID)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]any{"accepted": ok, "best": best})
	})
	return cmd
}

func newRematchCmd() *cobra.Command {
	var opts usecase.RematchOptions
	cmd := &cobra.Command{
		Use:   "rematch",
		Short: "Rematch every payment with the strict resolver",
		Long: `Rematch every payment. Interrupting a run saves a checkpoint; --resume
continues after the last payment known to be processed.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&opts.ClearExisting, "clear-existing", false, "Re-verify stored matches and clear those that no longer hold")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Concurrent workers (defaults to rematch.workers)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Resume from the last checkpoint")
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		if opts.Workers <= 0 {
			opts.Workers = a.cfg.Rematch.Workers
		}
		opts.Actor = actor
		summary, err := a.uc.RematchAll(ctx, opts)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), summary)
	})
	return cmd
}

func newDedupeCmd() *cobra.Command {
	var (
		dryRun   bool
		xlsxPath string
	)
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Resolve quarantined payments that were later imported",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the report as an XLSX workbook")
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		report, err := a.uc.ResolveDuplicates(ctx, usecase.DuplicateOptions{DryRun: dryRun, Actor: actor})
		if err != nil {
			return err
		}
		if xlsxPath != "" {
			if err := writeWorkbook(xlsxPath, report); err != nil {
				return err
			}
			a.logger.Info("workbook written", slog.String("path", xlsxPath))
		}
		return printResult(cmd.OutOrStdout(), report)
	})
	return cmd
}

// writeWorkbook writes report to path. A failed close is an error since
// the workbook may not be fully on disk.
func writeWorkbook(path string, report domain.DuplicateReport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return gateway.WriteDuplicateReport(f, report)
}

func newImportCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-csv <file>...",
		Short: "Import Stripe or Square CSV exports into the payments collection",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		payments, err := gateway.NewCSVPaymentReader().ReadPayments(ctx, cmd.Flags().Args())
		if err != nil {
			return err
		}
		inserted, skipped, err := a.uc.ImportPayments(ctx, payments)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]int{"parsed": len(payments), "inserted": inserted, "skipped": skipped})
	})
	return cmd
}

func newMarkImportedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark-imported <payment-id>",
		Short: "Record that a matched payment finished downstream processing",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		if err := a.uc.MarkImported(ctx, cmd.Flags().Arg(0), actor); err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]string{"paymentId": cmd.Flags().Arg(0), "status": "imported"})
	})
	return cmd
}
