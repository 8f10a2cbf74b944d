package harness

// TraceEvent records one executed step.
//
// Args and Result hold only strings, uint64s and bools so the trace
// serializes to canonical JSON. Record IDs are left out: they depend on the
// nonce prefix and would make golden files unreadable.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Action string         `json:"action"`
	Label  string         `json:"label,omitempty"`
	Args   map[string]any `json:"args"`
	Case   string         `json:"case"`
	Result map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every setup and flow step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the audit report of every labelled stream after the run.
	State map[string]interface{} `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]interface{}),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
