package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pulseledger/internal/ir"
)

// TraceSnapshot is the golden-file form of a run: step outcomes and the
// audit trace, serialized as canonical JSON.
type TraceSnapshot struct {
	ScenarioName string
	Steps        []StepOutcome
	Trace        []TraceEvent
}

func (s *TraceSnapshot) toCanonical() ir.Object {
	steps := make(ir.Array, len(s.Steps))
	for i, step := range s.Steps {
		obj := ir.Object{"op": ir.String(step.Op), "as": ir.String(step.As)}
		if step.Error != "" {
			obj["error"] = ir.String(step.Error)
		} else {
			obj["result"] = step.Result
		}
		steps[i] = obj
	}

	trace := make(ir.Array, len(s.Trace))
	for i, ev := range s.Trace {
		obj := ir.Object{
			"seq":    ir.Int(ev.Seq),
			"kind":   ir.String(ev.Kind),
			"actor":  ir.String(ev.Actor),
			"fields": ev.Fields,
		}
		if ev.Account != "" {
			obj["account"] = ir.String(ev.Account)
		}
		if ev.PulseID != 0 {
			obj["pulse_id"] = ir.Uint(ev.PulseID)
		}
		if ev.ProgramID != 0 {
			obj["program_id"] = ir.Uint(ev.ProgramID)
		}
		trace[i] = obj
	}

	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"steps":         steps,
		"trace":         trace,
	}
}

// Marshal returns the canonical JSON for the snapshot.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonical())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
		Trace:        result.Trace,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
