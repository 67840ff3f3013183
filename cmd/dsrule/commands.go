package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deep-security/config-rules/internal/models"
	"github.com/deep-security/config-rules/internal/providers/aws/compliance"
	"github.com/deep-security/config-rules/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dsrule",
		Short: "Deep Security AWS Config rule — evaluate instance protection compliance",
	}
	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// buildEvaluateHandler creates the handler used by dsrule evaluate.
// Tests override this variable to inject fake collaborators.
var buildEvaluateHandler = newProductionHandler

func newEvaluateCmd() *cobra.Command {
	var (
		eventPath string
		profile   string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one Config rule event file through the evaluation pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(eventPath)
			if err != nil {
				return fmt.Errorf("read event file %q: %w", eventPath, err)
			}

			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
				With().Timestamp().Logger()

			var reporter compliance.Reporter
			if dryRun {
				reporter = &dryRunReporter{log: logger}
			}

			h, err := buildEvaluateHandler(cmd.Context(), profile, reporter, logger)
			if err != nil {
				return err
			}

			res, err := h.Handle(cmd.Context(), raw)
			if err != nil {
				return fmt.Errorf("evaluate event: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res.AsMap())
		},
	}

	cmd.Flags().StringVar(&eventPath, "event", "", "Path to a JSON Config rule event file (required)")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use (default: credential chain)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log the evaluation instead of submitting it to AWS Config")
	cmd.MarkFlagRequired("event") //nolint:errcheck

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

// dryRunReporter satisfies compliance.Reporter but only logs the evaluation.
type dryRunReporter struct {
	log zerolog.Logger
}

func (r *dryRunReporter) Report(_ context.Context, eval models.Evaluation, resultToken string) (*configsvc.PutEvaluationsOutput, error) {
	r.log.Info().
		Str("resource_id", eval.ResourceID).
		Str("compliance", string(eval.Compliance)).
		Str("annotation", eval.Annotation).
		Str("result_token", resultToken).
		Msg("dry run: evaluation not submitted")
	return &configsvc.PutEvaluationsOutput{}, nil
}

// printJSON writes v as indented JSON to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
