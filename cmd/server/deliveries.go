package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/paynotify/internal/config"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/store"
)

func deliveriesCmd(cfgPath *string) *cobra.Command {
	var (
		state      string
		transport  string
		merchantID string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "deliveries [event_id merchant_id]",
		Short: "Inspect the delivery ledger",
		Long: `List delivery records, newest first, or show one record when an
event id and merchant id are given.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or <event_id> <merchant_id>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverMemory {
				return fmt.Errorf("deliveries: the memory ledger lives inside the server; configure sqlite or postgres")
			}
			ctx := context.Background()
			db, err := openDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			l, err := store.NewLedger(db)
			if err != nil {
				return err
			}

			if len(args) == 2 {
				rec, err := l.Get(ctx, ledger.Key{EventID: args[0], MerchantID: merchant.NormalizeID(args[1])})
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), []ledger.Record{rec}, asJSON)
			}

			f := ledger.Filter{Limit: limit, MerchantID: merchant.NormalizeID(merchantID)}
			if state != "" {
				f.State = ledger.State(strings.ToLower(state))
			}
			if transport != "" {
				kind, err := merchant.ParseKind(transport)
				if err != nil {
					return err
				}
				f.Transport = kind
			}
			recs, err := l.List(ctx, f)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs, asJSON)
		},
	}
	cmd.Flags().StringVarP(&state, "state", "s", "", "Filter by state (pending, delivered, exhausted)")
	cmd.Flags().StringVarP(&transport, "transport", "t", "", "Filter by transport (webhook, chat)")
	cmd.Flags().StringVarP(&merchantID, "merchant", "m", "", "Filter by merchant id")
	cmd.Flags().IntVarP(&limit, "limit", "n", ledger.DefaultListLimit, "Maximum records")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func printRecords(w io.Writer, recs []ledger.Record, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tMERCHANT\tTRANSPORT\tSTATE\tRETRIES\tCODE\tNEXT RETRY\tUPDATED")
	for _, r := range recs {
		code, next := "-", "-"
		if r.ResponseCode != nil {
			code = fmt.Sprint(*r.ResponseCode)
		}
		if r.NextRetryAt != nil {
			next = r.NextRetryAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.EventID, merchant.Merchant{ID: r.MerchantID}.ShortID(), r.Transport, r.State(),
			r.RetryCount, code, next, r.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
