package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/ledger"
	"github.com/roach88/pulseledger/internal/oracle"
	"github.com/roach88/pulseledger/internal/store"
	"github.com/roach88/pulseledger/internal/testutil"
)

// sealingSecret keys the harness's local confidential engine.
var sealingSecret = []byte("pulseledger-harness-sealing-key")

// Harness executes scenario steps against one ledger instance.
type Harness struct {
	store      *store.Store
	ledger     *ledger.Ledger
	oracle     *oracle.Local
	clock      *testutil.ManualClock
	logger     *slog.Logger
	lastSealed *ledger.SealedInput
}

// Run executes a scenario in a fresh in-memory database and returns the
// result. An error means the scenario could not be executed at all (bad
// arguments, a failing setup step, storage failure); assertion and expect
// mismatches are reported in Result.Errors instead.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	protocolID := scenario.ProtocolID
	if protocolID == 0 {
		protocolID = 1
	}
	orc, err := oracle.NewLocal(sealingSecret, protocolID, oracle.WithRand(rand.NewChaCha8([32]byte{})))
	if err != nil {
		return nil, fmt.Errorf("failed to create sealing engine: %w", err)
	}

	h := &Harness{
		store:  st,
		oracle: orc,
		clock:  testutil.NewManualClock(scenario.Time),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.ledger = ledger.New(st, orc,
		ledger.WithClock(h.clock),
		ledger.WithTokenGenerator(ledger.NewSequenceGenerator("op")),
		ledger.WithLogger(h.logger),
		ledger.WithProtocolID(protocolID),
	)

	ctx := context.Background()
	if err := h.ledger.Initialize(ctx, scenario.Admin); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	events, err := st.QueryEvents(ctx, store.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	for _, ev := range events {
		result.Trace = append(result.Trace, traceEvent(ev))
	}

	actx := &AssertionContext{Store: st, Ledger: h.ledger, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		if _, err := h.execute(ctx, step); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		h.logger.Debug("setup step completed", "step", i, "op", step.Op)
	}
	return nil
}

func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		outcome := StepOutcome{Op: step.Op, As: step.As}

		res, err := h.execute(ctx, step)
		var domainErr *ledger.Error
		switch {
		case err == nil:
			outcome.Result = res
		case errors.As(err, &domainErr):
			outcome.Error = string(domainErr.Code)
		default:
			return fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		}
		result.Steps = append(result.Steps, outcome)

		if step.Expect != nil {
			if msg := checkExpect(step.Expect, outcome); msg != "" {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
			}
		}

		h.logger.Debug("flow step completed", "step", i, "op", step.Op, "error", outcome.Error)
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, step Step) (ir.Object, error) {
	op, ok := operations[step.Op]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
	args, err := convertArgs(step.Args)
	if err != nil {
		return nil, err
	}
	if step.Advance > 0 {
		h.clock.Advance(step.Advance)
	}
	return op.run(ctx, h, step.As, &argReader{obj: args})
}

// checkExpect compares an outcome with its expect clause and describes the
// first mismatch.
func checkExpect(expect *Expect, outcome StepOutcome) string {
	if expect.Error != "" {
		if outcome.Error != expect.Error {
			return fmt.Sprintf("expected error %s, got %s", expect.Error, describeOutcome(outcome))
		}
		return ""
	}
	if outcome.Error != "" {
		return fmt.Sprintf("expected success, got error %s", outcome.Error)
	}
	want, err := convertArgs(expect.Result)
	if err != nil {
		return fmt.Sprintf("expect.result: %v", err)
	}
	if !matchFields(outcome.Result, want) {
		return fmt.Sprintf("expected result %v, got %v", want, outcome.Result)
	}
	return ""
}

func describeOutcome(o StepOutcome) string {
	if o.Error != "" {
		return "error " + o.Error
	}
	return "success"
}

// convertArgs converts YAML-decoded values to an ir.Object. Nulls and
// floats are rejected.
func convertArgs(args map[string]any) (ir.Object, error) {
	if args == nil {
		return ir.Object{}, nil
	}
	v, err := ir.FromGo(args)
	if err != nil {
		return nil, fmt.Errorf("args: %w", err)
	}
	return v.(ir.Object), nil
}
