package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pulseledger/internal/ir"
)

// Scenario is a scripted sequence of ledger operations plus assertions on
// the resulting audit log and tables.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Admin is the genesis account; it holds every built-in role.
	Admin string `yaml:"admin"`

	// Time is the clock start in unix seconds. Zero uses testutil.DefaultEpoch.
	Time int64 `yaml:"time,omitempty"`

	// ProtocolID fixes the confidential protocol at genesis. Zero means 1.
	ProtocolID uint64 `yaml:"protocol_id,omitempty"`

	// Setup steps establish state and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step invokes one ledger operation as an account.
type Step struct {
	Op   string         `yaml:"op"`
	As   string         `yaml:"as"`
	Args map[string]any `yaml:"args,omitempty"`

	// Advance moves the clock forward by this many seconds before the step.
	Advance int64 `yaml:"advance,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the required outcome of a flow step. With Error set the
// step must fail with that ledger error code; otherwise it must succeed and
// its result must contain Result (subset match).
type Expect struct {
	Error  string         `yaml:"error,omitempty"`
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the final trace or state.
type Assertion struct {
	Type string `yaml:"type"`

	// Kind is the event kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Fields are expected event fields (trace_contains), subset match.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Kinds is the expected event order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the exact number of events of Kind (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect drive final_state.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains    = "trace_contains"
	AssertTraceOrder       = "trace_order"
	AssertTraceCount       = "trace_count"
	AssertFinalState       = "final_state"
	AssertChainIntact      = "chain_intact"
	AssertReplayConsistent = "replay_consistent"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos surface immediately.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Admin == "" {
		return fmt.Errorf("admin is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Error != "" && step.Expect.Result != nil {
			return fmt.Errorf("flow[%d].expect: error and result are mutually exclusive", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Op == "" {
		return fmt.Errorf("op is required")
	}
	op, ok := operations[step.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.As == "" {
		return fmt.Errorf("as is required")
	}
	if step.Advance < 0 {
		return fmt.Errorf("advance must be non-negative")
	}
	for key := range step.Args {
		if !slices.Contains(op.args, key) {
			return fmt.Errorf("op %s does not take argument %q", step.Op, key)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if !slices.Contains(ir.EventKinds, ir.EventKind(a.Kind)) {
			return fmt.Errorf("assertions[%d]: unknown event kind %q for %s", index, a.Kind, a.Type)
		}
		if a.Type == AssertTraceCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertChainIntact, AssertReplayConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
