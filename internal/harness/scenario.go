package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jetrpay/streampay/internal/payroll"
)

// Scenario defines a ledger scenario.
// Scenarios drive a fresh ledger through a list of steps and assert on the
// resulting trace and stored state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy overrides the default settlement policy for this scenario.
	Policy *PolicySpec `yaml:"policy,omitempty"`

	// NoncePrefix seeds the deterministic issuance nonces ("<prefix>-1", ...).
	// If empty, the scenario name is used.
	NoncePrefix string `yaml:"nonce_prefix,omitempty"`

	// Setup contains steps run before the flow. Every setup step must
	// succeed; a failing setup step aborts the run.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the main steps, each optionally checked by an expect clause.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_count, trace_order, payment_total,
	// unspent_count, final_state, audit_clean
	Assertions []Assertion `yaml:"assertions"`
}

// PolicySpec mirrors payroll.Policy in scenario files.
type PolicySpec struct {
	InitialCustody string `yaml:"initial_custody,omitempty"`
	Overflow       string `yaml:"overflow,omitempty"`
	EmitExhausted  bool   `yaml:"emit_exhausted,omitempty"`
}

// Policy converts the scenario policy. A nil spec is the default policy.
func (p *PolicySpec) Policy() payroll.Policy {
	if p == nil {
		return payroll.DefaultPolicy()
	}
	return payroll.Policy{
		InitialCustody: payroll.Custody(p.InitialCustody),
		Overflow:       payroll.Overflow(p.Overflow),
		EmitExhausted:  p.EmitExhausted,
	}
}

// ActionStep is a setup step. Setup steps are assumed to succeed.
type ActionStep struct {
	// Action is one of create_stream, claim_salary, advance_height.
	Action string `yaml:"action"`

	// As labels the stream created by a create_stream step.
	As string `yaml:"as,omitempty"`

	// Args contains the action arguments.
	Args map[string]interface{} `yaml:"args"`
}

// FlowStep is a step in the main flow.
type FlowStep struct {
	// Invoke is one of create_stream, claim_salary, advance_height.
	Invoke string `yaml:"invoke"`

	// As labels the stream created by a create_stream step.
	As string `yaml:"as,omitempty"`

	// Args contains the action arguments.
	//
	// create_stream: caller, employee, rate, max_amount, start_time
	// claim_salary:  caller, stream, amount, height (default: current height),
	//                tamper_claimed (present a record with a forged claimed_amount)
	// advance_height: height
	//
	// stream is a label ("s": latest version) or "label@version" to present an
	// older, already consumed version.
	Args map[string]interface{} `yaml:"args"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Case is "OK" or an outcome code such as ZERO_CLAIM or RECORD_CONSUMED.
	Case string `yaml:"case"`

	// Result contains expected result fields.
	// This is a subset match - only specified fields are validated.
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_count": action (optionally with case) appears exactly Count times
	// - "trace_order": actions appear in order
	// - "payment_total": payments (filtered by owner and/or stream) sum to Amount
	// - "unspent_count": owner holds exactly Count unconsumed records
	// - "final_state": the stream's audit report matches Expect
	// - "audit_clean": the stream (or every stream) passes the chain audit
	Type string `yaml:"type"`

	// Action is the action name (trace_count).
	Action string `yaml:"action,omitempty"`

	// Case filters trace_count to steps with this outcome.
	Case string `yaml:"case,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Stream is a stream label (payment_total, final_state, audit_clean).
	Stream string `yaml:"stream,omitempty"`

	// Owner filters by owner (payment_total, unspent_count).
	Owner string `yaml:"owner,omitempty"`

	// Amount is the expected payment total (payment_total).
	Amount uint64 `yaml:"amount,omitempty"`

	// Count is the expected number of occurrences (trace_count, unspent_count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected field values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Action names.
const (
	ActionCreateStream  = "create_stream"
	ActionClaimSalary   = "claim_salary"
	ActionAdvanceHeight = "advance_height"
)

// Assertion type constants.
const (
	AssertTraceCount   = "trace_count"
	AssertTraceOrder   = "trace_order"
	AssertPaymentTotal = "payment_total"
	AssertUnspentCount = "unspent_count"
	AssertFinalState   = "final_state"
	AssertAuditClean   = "audit_clean"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := s.Policy.Policy().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	labels := make(map[string]bool)

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step.Action, step.As, step.Args, labels); err != nil {
			return err
		}
	}

	for i, step := range s.Flow {
		where := fmt.Sprintf("flow[%d]", i)
		if err := validateStep(where, step.Invoke, step.As, step.Args, labels); err != nil {
			return err
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("%s.expect: case is required", where)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, labels); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks a step's action, label and stream reference.
// Labels are registered as create_stream steps are seen, so a claim can only
// refer to a stream created earlier in the file.
func validateStep(where, action, as string, args map[string]interface{}, labels map[string]bool) error {
	if args == nil {
		return fmt.Errorf("%s: args is required (use empty map if no args)", where)
	}

	switch action {
	case ActionCreateStream:
		if as == "" {
			return fmt.Errorf("%s: as is required for create_stream", where)
		}
		if labels[as] {
			return fmt.Errorf("%s: label %q is already used", where, as)
		}
		labels[as] = true
	case ActionClaimSalary:
		if as != "" {
			return fmt.Errorf("%s: as is only valid on create_stream", where)
		}
		ref, ok := args["stream"].(string)
		if !ok || ref == "" {
			return fmt.Errorf("%s: args.stream is required for claim_salary", where)
		}
		label, _, err := parseStreamRef(ref)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if !labels[label] {
			return fmt.Errorf("%s: unknown stream label %q", where, label)
		}
	case ActionAdvanceHeight:
		if _, ok := args["height"]; !ok {
			return fmt.Errorf("%s: args.height is required for advance_height", where)
		}
	case "":
		return fmt.Errorf("%s: action is required", where)
	default:
		return fmt.Errorf("%s: unknown action %q", where, action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, labels map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Stream != "" && !labels[a.Stream] {
		return fmt.Errorf("assertions[%d]: unknown stream label %q", index, a.Stream)
	}

	switch a.Type {
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertPaymentTotal:
	case AssertUnspentCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for unspent_count", index)
		}
	case AssertFinalState:
		if a.Stream == "" {
			return fmt.Errorf("assertions[%d]: stream is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertAuditClean:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
