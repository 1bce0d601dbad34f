package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"browserfetch/internal/faults"
	"browserfetch/internal/retry"
	"browserfetch/internal/textutil"
)

type classification struct {
	Input       string          `json:"input"`
	Kind        string          `json:"kind"`
	Origin      string          `json:"origin"`
	StatusCode  int             `json:"status_code,omitempty"`
	Severity    string          `json:"severity"`
	Retryable   bool            `json:"retryable"`
	Strategy    faults.Strategy `json:"strategy"`
	Schedule    []string        `json:"schedule"`
	UserMessage string          `json:"user_message"`
	Technical   string          `json:"technical"`
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:         "classify <message>",
		Short:       "Classify a failure message the way the daemon does",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			classified := faults.Classify(input)
			strategy := classified.Strategy()
			result := classification{
				Input:       input,
				Kind:        classified.Kind.String(),
				Origin:      classified.Kind.Origin(),
				StatusCode:  classified.StatusCode,
				Severity:    classified.Severity().String(),
				Retryable:   classified.Retryable(),
				Strategy:    strategy,
				Schedule:    []string{},
				UserMessage: classified.UserMessage(faults.ParseLanguage(lang)),
				Technical:   classified.TechnicalDetails(),
			}
			for _, delay := range retry.Schedule(strategy) {
				result.Schedule = append(result.Schedule, textutil.FormatDuration(delay))
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Kind:       %s (%s)\n", result.Kind, result.Origin)
			fmt.Fprintf(out, "Severity:   %s\n", result.Severity)
			fmt.Fprintf(out, "Retryable:  %s\n", yesNo(result.Retryable))
			fmt.Fprintf(out, "Strategy:   %s\n", strategy)
			if len(result.Schedule) > 0 {
				fmt.Fprintf(out, "Delays:     %s\n", strings.Join(result.Schedule, ", "))
			}
			fmt.Fprintf(out, "Message:    %s\n", result.UserMessage)
			fmt.Fprintf(out, "Technical:  %s\n", result.Technical)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "en", "Language for the user-facing message (en, zh)")
	return cmd
}
