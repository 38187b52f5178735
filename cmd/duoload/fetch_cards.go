package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/duoload/internal/config"
	"github.com/Sternrassler/duoload/pkg/client"
	"github.com/Sternrassler/duoload/pkg/logging"
	"github.com/Sternrassler/duoload/pkg/pagination"
	"github.com/Sternrassler/duoload/pkg/vocab"
	"github.com/spf13/cobra"
)

// fetchedPage is the debug view of one page.
type fetchedPage struct {
	Page    int            `json:"page"`
	HasNext bool           `json:"has_next"`
	Records []vocab.Record `json:"records"`
}

func newFetchCardsCommand(configFlag *string) *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:     "fetch-cards DECK_ID",
		Short:   "Fetch deck pages and print the mapped records as JSON",
		Example: "  duoload fetch-cards RGVjazo0NmYyYjllZC1hYmYzLTRiZDgtYTA1NC02OGRmYTRhNDIwM2U=",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deckID := strings.TrimSpace(args[0])
			if err := vocab.ValidateDeckID(deckID); err != nil {
				return fmt.Errorf("invalid deck ID: %w", err)
			}
			if pages <= 0 {
				return fmt.Errorf("--pages must be a positive integer (got %d)", pages)
			}

			cfg, _, err := config.Load(strings.TrimSpace(*configFlag))
			if err != nil {
				return err
			}
			logging.Setup(cfg.LoggingConfig(cmd.ErrOrStderr()))

			fetcher, err := client.New(cfg.ClientConfig(deckID))
			if err != nil {
				return &runtimeError{err: err}
			}

			var fetched []fetchedPage
			walker := pagination.NewWalker(fetcher, pagination.Config{PageLimit: pages})
			_, err = walker.Walk(cmd.Context(), pagination.Visitor{
				Page: func(_ context.Context, page *vocab.Page) error {
					fetched = append(fetched, fetchedPage{
						Page:    page.CurrentPage,
						HasNext: page.HasNext,
						Records: page.Records,
					})
					return nil
				},
			})
			if err != nil {
				return &runtimeError{err: err}
			}

			data, err := json.MarshalIndent(fetched, "", "  ")
			if err != nil {
				return fmt.Errorf("encode pages: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to fetch")
	return cmd
}
