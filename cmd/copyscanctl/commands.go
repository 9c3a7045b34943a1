package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/creatorhub/copyscan/internal/enforcement"
	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/scan"
	"github.com/creatorhub/copyscan/pkg/dto"
)

func newScanCommand(cc *commandContext) *cobra.Command {
	var req models.ScanRequest
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Compare an original against a candidate URL",
		Long: "Runs the scan in this process and prints the resulting match.\n" +
			"With --enqueue the scan is queued for the worker instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := scan.ValidateRequest(req); err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := cc.services(ctx)
			if err != nil {
				return err
			}

			if enqueue {
				job, err := svc.DB.Enqueue(ctx, scan.JobKind, req)
				if err != nil {
					return err
				}
				if cc.jsonOutput {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued scan %s\n", job.ID)
				return nil
			}

			engine, release, err := svc.NewEngine()
			if err != nil {
				return err
			}
			defer release()

			m, err := engine.Scan(ctx, req)
			if errors.Is(err, scan.ErrUnavailable) {
				return fmt.Errorf("no match recorded: %w", err)
			}
			if err != nil {
				return err
			}
			return printMatch(cmd, cc, m)
		},
	}

	cmd.Flags().StringVar(&req.OriginalRef, "original", "", "Original media reference (object key or URL)")
	cmd.Flags().StringVar(&req.CandidateURL, "candidate", "", "Candidate URL to check")
	cmd.Flags().Float64SliceVar(&req.Intervals, "interval", nil, "Sampling interval in seconds (repeatable)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Queue the scan for the worker")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("candidate")

	return cmd
}

func newActionCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "action MATCH_ID TYPE",
		Short: "Apply takedown, infringement_email or ignored to a match",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid match id %q", args[0])
			}
			if _, ok := models.ParseActionType(args[1]); !ok {
				return fmt.Errorf("%w: %q", enforcement.ErrInvalidActionType, args[1])
			}

			ctx := cmd.Context()
			svc, err := cc.services(ctx)
			if err != nil {
				return err
			}
			a, err := svc.NewWorkflow().Apply(ctx, id, args[1])
			if err != nil {
				return err
			}

			if cc.jsonOutput {
				return writeJSON(cmd, dto.NewActionResponse(a))
			}
			fmt.Fprint(cmd.OutOrStdout(), renderActions([]models.CopyrightAction{*a}))
			if a.Status == models.ActionStatusFailed {
				return fmt.Errorf("action recorded as failed: %s", a.Detail)
			}
			return nil
		},
	}
}

func newMatchCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "match MATCH_ID",
		Short: "Show a match with its action history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid match id %q", args[0])
			}
			ctx := cmd.Context()
			svc, err := cc.services(ctx)
			if err != nil {
				return err
			}
			m, err := svc.DB.GetMatch(ctx, id)
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("match %s not found", id)
			}
			return printMatch(cmd, cc, m)
		},
	}
}

func newMatchesCommand(cc *commandContext) *cobra.Command {
	var originalRef string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List recent matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := cc.services(ctx)
			if err != nil {
				return err
			}
			matches, total, err := svc.DB.ListMatches(ctx, originalRef, limit, offset)
			if err != nil {
				return err
			}
			if cc.jsonOutput {
				resp := dto.MatchListResponse{Matches: make([]dto.MatchResponse, 0, len(matches)), Total: total}
				for i := range matches {
					resp.Matches = append(resp.Matches, dto.NewMatchResponse(&matches[i]))
				}
				return writeJSON(cmd, resp)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderMatchList(matches))
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d matches\n", len(matches), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&originalRef, "original", "", "Only matches of this original")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func newJobCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job JOB_ID",
		Short: "Show a queued scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			ctx := cmd.Context()
			svc, err := cc.services(ctx)
			if err != nil {
				return err
			}
			job, err := svc.DB.GetJob(ctx, id)
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", id)
			}
			if cc.jsonOutput {
				return writeJSON(cmd, job)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderJob(job))
			return nil
		},
	}
}

func printMatch(cmd *cobra.Command, cc *commandContext, m *models.CopyrightMatch) error {
	if cc.jsonOutput {
		return writeJSON(cmd, dto.NewMatchResponse(m))
	}
	fmt.Fprint(cmd.OutOrStdout(), renderMatch(m))
	return nil
}
