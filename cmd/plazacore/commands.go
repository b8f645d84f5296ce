package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plazacore/internal/blob"
	"plazacore/internal/core"
	"plazacore/pkg/domain"
)

// newService opens the configured store and wires the engine with metrics,
// logging, and blob-backed history archival when a blob driver is set.
func newService(opts *cliOptions) (*core.Service, *zap.Logger, error) {
	logger, err := newLogger(opts)
	if err != nil {
		return nil, nil, err
	}
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	serviceOpts := []core.Option{
		core.WithLogger(logger),
		core.WithMetrics(core.NewExpvarMetricsRecorder("plazacore")),
	}
	if os.Getenv(blob.EnvBlobDriver) != "" {
		blobs, err := blob.Open(context.Background())
		if err != nil {
			return nil, nil, fmt.Errorf("open blob store: %w", err)
		}
		coordStore := core.NewCoordinator(store, core.DefaultRetryPolicy, logger)
		inner := core.NewStoreHistoryRecorder(coordStore, nil)
		serviceOpts = append(serviceOpts, core.WithHistoryRecorder(core.NewArchivingHistoryRecorder(inner, blobs, nil)))
	}
	return core.NewService(store, serviceOpts...), logger, nil
}

func newFacilitiesCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "Manage facilities",
	}

	var (
		code     string
		name     string
		zone     string
		address  string
		capacity int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a facility",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			created, _, err := svc.CreateFacility(cmd.Context(), domain.Facility{
				Code:     code,
				Name:     name,
				Zone:     zone,
				Address:  address,
				Capacity: capacity,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created facility %s (%s) capacity %d\n", created.Code, created.ID, created.Capacity)
			return nil
		},
	}
	add.Flags().StringVar(&code, "code", "", "facility code (required)")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&zone, "zone", "", "zone identifier")
	add.Flags().StringVar(&address, "address", "", "street address")
	add.Flags().IntVar(&capacity, "capacity", 0, "seat capacity (required)")
	_ = add.MarkFlagRequired("code")
	_ = add.MarkFlagRequired("capacity")

	list := &cobra.Command{
		Use:   "list",
		Short: "List facilities with occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tZONE\tOCCUPIED\tCAPACITY")
			for _, f := range svc.ListFacilities() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", f.ID, f.Code, f.Name, f.Zone, f.Occupied, f.Capacity)
			}
			return w.Flush()
		},
	}

	rm := &cobra.Command{
		Use:   "rm <facility-id>",
		Short: "Delete an empty facility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if _, err := svc.DeleteFacility(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted facility %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, rm)
	return cmd
}

// requestDoc is the JSON shape accepted by load and process --full.
type requestDoc struct {
	PriorityKey int       `json:"priority_key"`
	Preferences []string  `json:"preferences"`
	Submitter   string    `json:"submitter,omitempty"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
}

func readBatch(path string) ([]domain.Request, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	var docs []requestDoc
	if err := json.Unmarshal(payload, &docs); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	requests := make([]domain.Request, 0, len(docs))
	for _, doc := range docs {
		requests = append(requests, domain.Request{
			PriorityKey: doc.PriorityKey,
			Preferences: doc.Preferences,
			Submitter:   doc.Submitter,
			SubmittedAt: doc.SubmittedAt,
		})
	}
	return requests, nil
}

func newLoadCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <batch.json>",
		Short: "Submit a JSON batch of requests to the pending set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			requests, err := readBatch(args[0])
			if err != nil {
				return err
			}
			accepted := 0
			for _, req := range requests {
				if _, _, err := svc.SubmitRequest(cmd.Context(), req); err != nil {
					logger.Warn("request rejected",
						zap.Int("priority_key", req.PriorityKey),
						zap.Error(err))
					continue
				}
				accepted++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted %d of %d requests\n", accepted, len(requests))
			return nil
		},
	}
}

func newProcessCmd(opts *cliOptions) *cobra.Command {
	var fullBatch string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Resolve pending requests",
		Long: "Without flags, process resolves the current pending set incrementally.\n" +
			"With --full, it rebuilds the entire allocation from a JSON batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			var summary core.Summary
			if fullBatch != "" {
				requests, err := readBatch(fullBatch)
				if err != nil {
					return err
				}
				summary, err = svc.Engine().ProcessAll(cmd.Context(), requests)
				if err != nil {
					return err
				}
			} else {
				summary, err = svc.Engine().ProcessPending(cmd.Context())
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d: %d assigned, %d unassignable\n",
				summary.Processed, summary.Assigned, summary.Unassignable)
			return nil
		},
	}
	cmd.Flags().StringVar(&fullBatch, "full", "", "rebuild the allocation from this JSON batch")
	return cmd
}

func newProcessOneCmd(opts *cliOptions) *cobra.Command {
	var (
		key   int
		prefs string
	)
	cmd := &cobra.Command{
		Use:   "process-one",
		Short: "Resolve a single ad-hoc request",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			var preferences []string
			for _, p := range strings.Split(prefs, ",") {
				if p = strings.TrimSpace(p); p != "" {
					preferences = append(preferences, p)
				}
			}
			outcome, err := svc.Engine().ProcessOne(cmd.Context(), domain.Request{
				PriorityKey: key,
				Preferences: preferences,
			})
			if err != nil {
				return err
			}
			switch outcome.Status {
			case core.OutcomeStatusAssigned:
				fmt.Fprintf(cmd.OutOrStdout(), "key %d assigned to %s\n", key, outcome.FacilityID)
				if outcome.DisplacedKey != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "displaced key %d\n", *outcome.DisplacedKey)
				}
			case core.OutcomeStatusUnassignable:
				fmt.Fprintf(cmd.OutOrStdout(), "key %d unassignable\n", key)
			case core.OutcomeStatusAlreadyResolved:
				fmt.Fprintf(cmd.OutOrStdout(), "key %d already resolved\n", key)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&key, "key", 0, "priority key (required)")
	cmd.Flags().StringVar(&prefs, "prefer", "", "comma-separated facility IDs in preference order")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newRebalanceCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance",
		Short: "Rebuild occupancy counters from assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			report, err := svc.Engine().Rebalance(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "corrected %d facilities\n", report.CorrectedFacilities)
			return nil
		},
	}
}

func newDedupeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Remove duplicate pending requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			report, err := svc.Engine().RemoveDuplicates(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "found %d duplicates, removed %d\n", report.Duplicates, report.Removed)
			return nil
		},
	}
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the outcome audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RECORDED\tKEY\tOUTCOME\tMESSAGE")
			for _, rec := range svc.ListHistoryRecords() {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					rec.RecordedAt.Format(time.RFC3339), rec.PriorityKey, rec.Outcome, rec.Message)
			}
			return w.Flush()
		},
	}
}

func newWatchCmd(opts *cliOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically resolve pending requests until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sched := core.NewScheduler(svc.Engine(), interval, logger)
			logger.Info("watching pending set", zap.Duration("interval", interval))
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "time between processing passes")
	return cmd
}
