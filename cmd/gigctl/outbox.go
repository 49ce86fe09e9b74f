package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

func outboxCmd() *cobra.Command {
	var filter outbox.DLQFilter
	var eventType, reason string

	list := &cobra.Command{
		Use:   "list",
		Short: "Show dead-lettered events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			filter.EventType = enums.OutboxEventType(eventType)
			filter.Reason = enums.OutboxDLQErrorReason(reason)
			if filter.Reason != "" && !filter.Reason.IsValid() {
				return fmt.Errorf("unknown reason %q", reason)
			}

			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			rows, err := outbox.NewDLQRepository(e.db.DB()).List(c.Context(), filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT ID\tTYPE\tREASON\tATTEMPTS\tFAILED AT\tERROR")
			for _, row := range rows {
				msg := ""
				if row.ErrorMessage != nil {
					msg = *row.ErrorMessage
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, row.FailedAt.Format("2006-01-02 15:04:05"), msg)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&eventType, "type", "", "only this event type")
	list.Flags().StringVar(&reason, "reason", "", "max_attempts or non_retryable")
	list.Flags().IntVar(&filter.Limit, "limit", 50, "rows to show")

	requeue := &cobra.Command{
		Use:   "requeue EVENT_ID...",
		Short: "Hand dead-lettered events back to the outbox publisher",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("%q is not an event id", arg)
				}
				ids = append(ids, id)
			}

			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			gdb := e.db.DB()
			requeuer := outbox.NewRequeuer(e.db, outbox.NewRepository(gdb), outbox.NewDLQRepository(gdb))
			for _, id := range ids {
				if err := requeuer.Requeue(c.Context(), id); err != nil {
					return fmt.Errorf("requeue %s: %w", id, err)
				}
				fmt.Fprintln(c.OutOrStdout(), "requeued", id)
			}
			return nil
		},
	}

	dlq := &cobra.Command{Use: "dlq", Short: "Inspect and replay the outbox dead letter table"}
	dlq.AddCommand(list, requeue)

	cmd := &cobra.Command{Use: "outbox", Short: "Operate the transactional outbox"}
	cmd.AddCommand(dlq)
	return cmd
}
