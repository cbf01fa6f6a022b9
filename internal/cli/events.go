package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Kinds   []string
	PulseID uint64
	Program uint64
	Account string
	After   int64
	Limit   int
}

// EventsResult holds the filtered audit log.
type EventsResult struct {
	Events []ir.Event     `json:"events"`
	Stats  map[string]int `json:"stats"` // events per kind
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the audit log",
		Long: `Query the audit log in sequence order.

Filters combine with AND. --kind may be repeated. --after is an exclusive
sequence cursor for paging.

Examples:
  pulseledger events
  pulseledger events --pulse 1
  pulseledger events --kind RoleGranted --kind RoleRevoked --account 0xanalyst
  pulseledger events --after 100 --limit 50 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "event kind (repeatable)")
	cmd.Flags().Uint64Var(&opts.PulseID, "pulse", 0, "only events of this pulse")
	cmd.Flags().Uint64Var(&opts.Program, "program", 0, "only events of this program")
	cmd.Flags().StringVar(&opts.Account, "account", "", "only events whose subject is this account")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events after this sequence number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	filter := store.EventFilter{
		PulseID:   opts.PulseID,
		ProgramID: opts.Program,
		Account:   opts.Account,
		AfterSeq:  opts.After,
		Limit:     opts.Limit,
	}
	for _, k := range opts.Kinds {
		kind := ir.EventKind(k)
		if !slices.Contains(ir.EventKinds, kind) {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q", k))
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	return withSession(cmd, opts.RootOptions, func(s *session) error {
		events, err := s.ledger.Events(cmd.Context(), filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query events", err)
		}
		if events == nil {
			events = []ir.Event{}
		}

		result := EventsResult{Events: events, Stats: make(map[string]int)}
		for _, ev := range events {
			result.Stats[string(ev.Kind)]++
		}
		return s.out.Success(result, func(w io.Writer) { writeEvents(w, result, opts.Verbose) })
	})
}

func writeEvents(w io.Writer, result EventsResult, verbose bool) {
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	for _, ev := range result.Events {
		fmt.Fprintf(w, "[%d] %s by %s", ev.Seq, ev.Kind, ev.Actor)
		if ev.PulseID != 0 {
			fmt.Fprintf(w, " pulse=%d", ev.PulseID)
		}
		if ev.ProgramID != 0 {
			fmt.Fprintf(w, " program=%d", ev.ProgramID)
		}
		if ev.Account != "" {
			fmt.Fprintf(w, " account=%s", ev.Account)
		}
		fmt.Fprintln(w)

		if verbose {
			for _, key := range ev.Fields.SortedKeys() {
				fmt.Fprintf(w, "    %s: %v\n", key, ev.Fields[key])
			}
			fmt.Fprintf(w, "    at: %d\n", ev.At)
			fmt.Fprintf(w, "    hash: %s\n", ev.Hash)
		}
	}

	kinds := make([]string, 0, len(result.Stats))
	for k := range result.Stats {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d event(s):", len(result.Events))
	for _, k := range kinds {
		fmt.Fprintf(w, " %s=%d", k, result.Stats[k])
	}
	fmt.Fprintln(w)
}
