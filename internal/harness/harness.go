package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/ledger"
	"github.com/jetrpay/streampay/internal/payroll"
	"github.com/jetrpay/streampay/internal/store"
	"github.com/jetrpay/streampay/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios against a real ledger with deterministic nonces and a
// manually advanced height.
type Harness struct {
	ledger *ledger.Ledger
	height *ledger.ManualHeight
	logger *slog.Logger

	// chains holds every version seen per stream label, indexed by version.
	chains map[string][]ir.StreamRecord
	seq    int64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Open a fresh store and ledger under the scenario policy
//  2. Execute setup steps (each must succeed)
//  3. Execute flow steps, checking expect clauses
//  4. Snapshot every labelled stream into Result.State
//  5. Evaluate assertions
//
// The returned error covers broken scenarios (bad arguments, unknown
// labels, failing setup). Failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	prefix := scenario.NoncePrefix
	if prefix == "" {
		prefix = scenario.Name
	}

	height := ledger.NewManualHeight(0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	l, err := ledger.New(ctx, st,
		ledger.WithPolicy(scenario.Policy.Policy()),
		ledger.WithHeightOracle(height),
		ledger.WithNonces(testutil.NewSequentialNonces(prefix)),
		ledger.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	h := &Harness{
		ledger: l,
		height: height,
		logger: logger,
		chains: make(map[string][]ir.StreamRecord),
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot state: %w", err)
	}

	actx := &AssertionContext{
		Ledger:  l,
		Ctx:     ctx,
		Streams: h.streamKeys(),
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSetup runs all setup steps. A setup step that does not succeed
// aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep, result *Result) error {
	for i, step := range setup {
		event, err := h.execute(ctx, step.Action, step.As, step.Args)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		result.AddTrace(event)

		if event.Case != ledger.OutcomeOK {
			return fmt.Errorf("setup step %d (%s): got %s, setup steps must succeed", i, step.Action, event.Case)
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
// A step without an expect clause must succeed.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		event, err := h.execute(ctx, step.Invoke, step.As, step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		result.AddTrace(event)

		expectedCase := ledger.OutcomeOK
		if step.Expect != nil {
			expectedCase = step.Expect.Case
		}
		if event.Case != expectedCase {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s%s",
				i, step.Invoke, expectedCase, event.Case, describeResult(event.Result)))
			continue
		}

		if step.Expect != nil {
			for _, key := range sortedKeys(step.Expect.Result) {
				want := step.Expect.Result[key]
				got, ok := event.Result[key]
				if !ok {
					result.AddError(fmt.Sprintf("flow[%d] %s: result field %q missing%s",
						i, step.Invoke, key, describeResult(event.Result)))
					continue
				}
				if !valuesEqual(got, want) {
					result.AddError(fmt.Sprintf("flow[%d] %s: result field %q = %v, expected %v",
						i, step.Invoke, key, got, want))
				}
			}
		}
	}
	return nil
}

// execute parses one step, applies it to the ledger and returns its trace
// event. Ledger failures become the event's case; the returned error is
// reserved for steps the harness cannot run at all.
func (h *Harness) execute(ctx context.Context, action, label string, args map[string]interface{}) (TraceEvent, error) {
	c, err := parseCall(action, args)
	if err != nil {
		return TraceEvent{}, err
	}

	h.seq++
	event := TraceEvent{Seq: h.seq, Action: action, Label: label}

	var opErr error
	switch action {
	case ActionCreateStream:
		event.Result, opErr = h.createStream(ctx, label, c)
	case ActionClaimSalary:
		if !c.hasHeight {
			if c.height, err = h.height.CurrentHeight(ctx); err != nil {
				return TraceEvent{}, err
			}
		}
		rec, err := h.resolve(c.stream)
		if err != nil {
			return TraceEvent{}, err
		}
		if c.tamper != nil {
			// Keep the stored ID so the store finds the record and the
			// settlement rules see the mismatch.
			rec.ClaimedAmount = *c.tamper
		}
		event.Result, opErr = h.claimSalary(ctx, c, rec)
	case ActionAdvanceHeight:
		opErr = h.ledger.AdvanceHeight(ctx, c.height)
		if opErr == nil {
			event.Result = map[string]any{"height": uint64(c.height)}
		}
	}

	event.Args = c.traceArgs(action)
	event.Case = ledger.Outcome(opErr)
	if opErr != nil {
		event.Result = failureResult(opErr)
	}

	h.logger.Info("step completed",
		"seq", event.Seq,
		"action", action,
		"label", label,
		"case", event.Case,
	)
	return event, nil
}

func (h *Harness) createStream(ctx context.Context, label string, c call) (map[string]any, error) {
	rec, err := h.ledger.CreateStream(ctx, c.caller, c.employee, c.rate, c.maxAmount, c.startTime)
	if err != nil {
		return nil, err
	}
	h.chains[label] = []ir.StreamRecord{rec}

	return map[string]any{
		"owner":          string(rec.Owner),
		"version":        uint64(rec.Version),
		"claimed_amount": rec.ClaimedAmount,
	}, nil
}

func (h *Harness) claimSalary(ctx context.Context, c call, rec ir.StreamRecord) (map[string]any, error) {
	res, err := h.ledger.ClaimSalary(ctx, c.caller, rec, c.amount, c.height)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"payment":        res.Payment.Amount,
		"claimed_amount": res.Consumed.ClaimedAmount + res.Payment.Amount,
		"exhausted":      res.Exhausted(),
	}
	if res.Successor != nil {
		out["version"] = uint64(res.Successor.Version)
		out["owner"] = string(res.Successor.Owner)

		label, _, _ := parseStreamRef(c.stream)
		if chain := h.chains[label]; int(res.Successor.Version) == len(chain) {
			h.chains[label] = append(chain, *res.Successor)
		}
	}
	return out, nil
}

// resolve maps "label" to the latest known version of a stream and
// "label@N" to version N.
func (h *Harness) resolve(ref string) (ir.StreamRecord, error) {
	label, version, err := parseStreamRef(ref)
	if err != nil {
		return ir.StreamRecord{}, err
	}
	chain, ok := h.chains[label]
	if !ok {
		return ir.StreamRecord{}, fmt.Errorf("stream %q was never created", label)
	}
	if version < 0 {
		return chain[len(chain)-1], nil
	}
	if version >= len(chain) {
		return ir.StreamRecord{}, fmt.Errorf("stream %q has no version %d (latest is %d)", label, version, len(chain)-1)
	}
	return chain[version], nil
}

// snapshot stores the audit view of every labelled stream in result.State.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	for label, key := range h.streamKeys() {
		state, err := streamState(ctx, h.ledger, key)
		if err != nil {
			return fmt.Errorf("stream %q: %w", label, err)
		}
		result.State[label] = state
	}
	return nil
}

func (h *Harness) streamKeys() map[string]string {
	keys := make(map[string]string, len(h.chains))
	for label, chain := range h.chains {
		keys[label] = chain[0].StreamKey
	}
	return keys
}

// streamState flattens a stream's audit report and its latest stored
// version into one map.
func streamState(ctx context.Context, l *ledger.Ledger, streamKey string) (map[string]any, error) {
	report, err := l.Audit(ctx, streamKey)
	if err != nil {
		return nil, err
	}
	latest, err := l.Latest(ctx, streamKey)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"versions":   uint64(report.Versions),
		"payments":   uint64(report.Payments),
		"max_amount": report.MaxAmount,
		"claimed":    report.Claimed,
		"paid":       report.Paid,
		"exhausted":  report.Exhausted,
		"ok":         report.OK(),
		"version":    uint64(latest.Record.Version),
		"owner":      string(latest.Record.Owner),
		"consumed":   latest.Consumed,
	}, nil
}

// failureResult turns a ledger error into trace fields. Settlement errors
// contribute their details; internal errors their message.
func failureResult(err error) map[string]any {
	var out map[string]any
	var se *payroll.SettlementError
	if errors.As(err, &se) && len(se.Details) > 0 {
		out = make(map[string]any, len(se.Details))
		for k, v := range se.Details {
			out[k] = v
		}
	}
	if ledger.Outcome(err) == ledger.OutcomeInternal {
		out = map[string]any{"error": err.Error()}
	}
	return out
}

func describeResult(result map[string]any) string {
	if len(result) == 0 {
		return ""
	}
	parts := make([]string, 0, len(result))
	for _, k := range sortedKeys(result) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, result[k]))
	}
	return " (" + strings.Join(parts, " ") + ")"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// call is a step with its arguments converted to ledger types.
type call struct {
	caller    ir.Address
	employee  ir.Address
	rate      uint64
	maxAmount uint64
	startTime uint32
	stream    string
	amount    uint64
	height    uint32
	hasHeight bool
	tamper    *uint64
}

var allowedArgs = map[string][]string{
	ActionCreateStream:  {"caller", "employee", "rate", "max_amount", "start_time"},
	ActionClaimSalary:   {"caller", "stream", "amount", "height", "tamper_claimed"},
	ActionAdvanceHeight: {"height"},
}

// parseCall converts YAML args. Numbers may be plain integers or typed
// literals such as "10u64".
func parseCall(action string, args map[string]interface{}) (call, error) {
	allowed, ok := allowedArgs[action]
	if !ok {
		return call{}, fmt.Errorf("unknown action %q", action)
	}
	for _, key := range sortedKeys(args) {
		if !slices.Contains(allowed, key) {
			return call{}, fmt.Errorf("%s: unknown arg %q", action, key)
		}
	}

	var c call
	var err error
	switch action {
	case ActionCreateStream:
		if c.caller, err = argAddress(args, "caller"); err != nil {
			return call{}, err
		}
		if c.employee, err = argAddress(args, "employee"); err != nil {
			return call{}, err
		}
		if c.rate, err = argU64(args, "rate"); err != nil {
			return call{}, err
		}
		if c.maxAmount, err = argU64(args, "max_amount"); err != nil {
			return call{}, err
		}
		if _, ok := args["start_time"]; ok {
			if c.startTime, err = argU32(args, "start_time"); err != nil {
				return call{}, err
			}
		}
	case ActionClaimSalary:
		if c.caller, err = argAddress(args, "caller"); err != nil {
			return call{}, err
		}
		ref, ok := args["stream"].(string)
		if !ok {
			return call{}, fmt.Errorf("arg %q: expected a stream label", "stream")
		}
		c.stream = ref
		if c.amount, err = argU64(args, "amount"); err != nil {
			return call{}, err
		}
		if _, ok := args["height"]; ok {
			if c.height, err = argU32(args, "height"); err != nil {
				return call{}, err
			}
			c.hasHeight = true
		}
		if _, ok := args["tamper_claimed"]; ok {
			v, err := argU64(args, "tamper_claimed")
			if err != nil {
				return call{}, err
			}
			c.tamper = &v
		}
	case ActionAdvanceHeight:
		if c.height, err = argU32(args, "height"); err != nil {
			return call{}, err
		}
	}
	return c, nil
}

// traceArgs returns the arguments as they were applied.
func (c call) traceArgs(action string) map[string]any {
	switch action {
	case ActionCreateStream:
		return map[string]any{
			"caller":     string(c.caller),
			"employee":   string(c.employee),
			"rate":       c.rate,
			"max_amount": c.maxAmount,
			"start_time": uint64(c.startTime),
		}
	case ActionClaimSalary:
		args := map[string]any{
			"caller": string(c.caller),
			"stream": c.stream,
			"amount": c.amount,
			"height": uint64(c.height),
		}
		if c.tamper != nil {
			args["tamper_claimed"] = *c.tamper
		}
		return args
	default:
		return map[string]any{"height": uint64(c.height)}
	}
}

// parseStreamRef splits "label" or "label@version". A missing version is -1.
func parseStreamRef(ref string) (string, int, error) {
	label, v, found := strings.Cut(ref, "@")
	if label == "" {
		return "", 0, fmt.Errorf("invalid stream reference %q", ref)
	}
	if !found {
		return label, -1, nil
	}
	version, err := strconv.Atoi(v)
	if err != nil || version < 0 {
		return "", 0, fmt.Errorf("invalid version in stream reference %q", ref)
	}
	return label, version, nil
}

func argAddress(args map[string]interface{}, key string) (ir.Address, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("arg %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("arg %q: expected a string, got %T", key, v)
	}
	return ir.Address(s), nil
}

func argU64(args map[string]interface{}, key string) (uint64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("arg %q is required", key)
	}
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("arg %q: %d is negative", key, n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("arg %q: %d is negative", key, n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case string:
		u, err := ir.ParseU64(n)
		if err != nil {
			return 0, fmt.Errorf("arg %q: %w", key, err)
		}
		return u, nil
	default:
		return 0, fmt.Errorf("arg %q: expected an unsigned integer, got %T", key, v)
	}
}

func argU32(args map[string]interface{}, key string) (uint32, error) {
	if s, ok := args[key].(string); ok {
		u, err := ir.ParseU32(s)
		if err != nil {
			return 0, fmt.Errorf("arg %q: %w", key, err)
		}
		return u, nil
	}
	n, err := argU64(args, key)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("arg %q: %d does not fit in u32", key, n)
	}
	return uint32(n), nil
}
