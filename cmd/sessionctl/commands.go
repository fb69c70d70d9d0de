package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/ashureev/whoareyou/internal/phone"
	"github.com/spf13/cobra"
)

func newListCmd(open opener) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, optionally filtered by state",
		Long: `List sessions oldest first.

Examples:
  sessionctl list
  sessionctl list --state GENERATING_SITE`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var states []domain.SessionState
			if state != "" {
				s := domain.SessionState(strings.ToUpper(state))
				if !s.Valid() {
					return fmt.Errorf("unknown state %q", state)
				}
				states = append(states, s)
			}
			return withEnv(cmd, open, func(e *env) error {
				sessions, err := e.repo.ListSessionsByState(cmd.Context(), states...)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPHONE\tSTATE\tQUESTION\tUPDATED")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
						s.ID, phone.Mask(s.Phone), s.State, s.QuestionIndex, s.UpdatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "only list sessions in this state")
	return cmd
}

func newShowCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session with its transcript, generation task and site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(e *env) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				s, err := e.repo.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				if s == nil {
					return fmt.Errorf("session %s not found", args[0])
				}
				fmt.Fprintf(out, "session   %s\nphone     %s\nstate     %s\nquestion  %d\ncreated   %s\n",
					s.ID, phone.Mask(s.Phone), s.State, s.QuestionIndex, s.CreatedAt.Format(time.RFC3339))

				task, err := e.repo.GetGeneration(ctx, s.ID)
				if err != nil {
					return err
				}
				if task != nil {
					fmt.Fprintf(out, "generation %s (attempts %d)", task.Status, task.Attempts)
					if task.LastError != "" {
						fmt.Fprintf(out, ": %s", task.LastError)
					}
					fmt.Fprintln(out)
				}

				site, err := e.repo.GetSiteBySession(ctx, s.ID)
				if err != nil {
					return err
				}
				if site != nil {
					fmt.Fprintf(out, "site      %s (template %s)\n", site.ID, site.Template)
				}

				msgs, err := e.repo.ListMessages(ctx, s.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "\ntranscript:")
				for _, m := range msgs {
					who := "them"
					if m.Direction == domain.DirectionOutbound {
						who = "us"
					}
					fmt.Fprintf(out, "  [%s] %-4s %s\n", m.CreatedAt.Format("15:04:05"), who, m.Body)
				}
				return nil
			})
		},
	}
}

func newStopAllCmd(open opener) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Force every active session to STOPPED",
		Long: `Force every CONSENT_PENDING, INTERVIEWING and GENERATING_SITE session to
STOPPED. No messages are sent. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to stop sessions without --yes")
			}
			return withEnv(cmd, open, func(e *env) error {
				stopped, err := e.repo.StopActiveSessions(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range stopped {
					fmt.Fprintf(cmd.OutOrStdout(), "stopped %s (%s, was %s)\n", s.ID, phone.Mask(s.Phone), s.State)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d session(s) stopped\n", len(stopped))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm stopping all active sessions")
	return cmd
}

func newRetryCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <session-id>",
		Short: "Rerun site generation for a session stuck in GENERATING_SITE",
		Long: `Rerun site generation synchronously, ignoring the attempt limit.
Use this after the sweeper gave up on a session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(e *env) error {
				site, err := e.runner.Retry(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("retry %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "site %s generated for session %s\n", site.ID, args[0])
				return nil
			})
		},
	}
}
