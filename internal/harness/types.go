package harness

import "github.com/roach88/pulseledger/internal/ir"

// TraceEvent is one audit log entry as seen by assertions and golden files.
// Hashes and operation tokens are left out; chain_intact covers them.
type TraceEvent struct {
	Seq       int64        `json:"seq"`
	Kind      ir.EventKind `json:"kind"`
	Actor     string       `json:"actor"`
	Account   string       `json:"account,omitempty"`
	PulseID   uint64       `json:"pulse_id,omitempty"`
	ProgramID uint64       `json:"program_id,omitempty"`
	Fields    ir.Object    `json:"fields"`
}

// StepOutcome is what a flow step produced.
type StepOutcome struct {
	Op     string    `json:"op"`
	As     string    `json:"as"`
	Error  string    `json:"error,omitempty"` // ledger error code
	Result ir.Object `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Steps []StepOutcome `json:"steps"`

	// Trace is the full audit log after the flow, setup included.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func traceEvent(ev ir.Event) TraceEvent {
	fields := ev.Fields
	if fields == nil {
		fields = ir.Object{}
	}
	return TraceEvent{
		Seq:       ev.Seq,
		Kind:      ev.Kind,
		Actor:     ev.Actor,
		Account:   ev.Account,
		PulseID:   ev.PulseID,
		ProgramID: ev.ProgramID,
		Fields:    fields,
	}
}
