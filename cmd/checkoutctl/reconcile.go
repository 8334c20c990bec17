package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psicolfis/checkout-api/internal/di"
	"github.com/psicolfis/checkout-api/internal/services"
)

type reconcileOutput struct {
	SessionID     string            `json:"session_id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Stale         bool              `json:"stale,omitempty"`
}

func reconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <session_id>",
		Short: "Fetch a session from Stripe and advance the stored transaction",
		Long: `Run the same reconciliation the status endpoint performs for a single session.

Useful when a webhook delivery was lost: the stored transaction moves forward to the
status Stripe reports and a status change event is published when it changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			container, err := di.NewContainer(ctx, s.cfg,
				di.WithLogger(s.logger),
				di.WithBuildInfo(services.BuildInfo{Version: Version}),
			)
			if err != nil {
				return err
			}
			defer container.Close(ctx)

			view, err := container.Services.Status.GetStatus(ctx, args[0])
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", args[0], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reconcileOutput{
				SessionID:     view.SessionID,
				Status:        view.Status,
				PaymentStatus: view.PaymentStatus,
				AmountTotal:   view.AmountTotal,
				Currency:      view.Currency,
				Metadata:      view.Metadata,
				Stale:         view.Stale,
			})
		},
	}
}
