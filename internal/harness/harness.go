package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pacledger/pacledger/internal/artifact"
	"github.com/pacledger/pacledger/internal/graph"
	"github.com/pacledger/pacledger/internal/loop"
	"github.com/pacledger/pacledger/internal/policy"
	"github.com/pacledger/pacledger/internal/store"
	"github.com/pacledger/pacledger/internal/testutil"
)

// StepResult records the observable outcome of one scenario step.
type StepResult struct {
	Op    string `json:"op"`
	Pac   string `json:"pac"`
	State string `json:"state,omitempty"` // session state after the step
	Error string `json:"error,omitempty"` // violation code when the step failed
}

// RecordLine is one audit record in the snapshot, hashes excluded.
type RecordLine struct {
	Seq    int64  `json:"seq"`
	Pac    string `json:"pac"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// Result holds everything a scenario run produced.
type Result struct {
	Steps    []StepResult      `json:"steps"`
	Sessions map[string]string `json:"sessions"`
	Records  []RecordLine      `json:"records"`
	ChainOK  bool              `json:"chain_ok"`
}

// Run executes a scenario on a fresh in-memory machine with a stepping
// clock and sequential dispatch tokens. Per-step expectations are enforced
// during the run; final expectations are enforced after it.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewWallClock()
	m := loop.New(st, policy.Default(),
		loop.WithClock(clock.Now),
		loop.WithTokens(&seqTokens{}),
	)

	result := &Result{Sessions: map[string]string{}}
	for i, step := range scenario.Steps {
		sr, err := runStep(ctx, m, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s %s): %w", i, step.Op, step.Pac, err)
		}
		result.Steps = append(result.Steps, sr)
	}

	for _, s := range m.Sessions() {
		result.Sessions[s.PacID] = string(s.State)
	}

	records, err := st.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	result.Records = make([]RecordLine, 0, len(records))
	for _, r := range records {
		result.Records = append(result.Records, RecordLine{
			Seq:    r.Seq,
			Pac:    r.PacID,
			Kind:   string(r.Kind),
			Detail: r.Detail,
		})
	}

	result.ChainOK, err = m.Trail().VerifyChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify chain: %w", err)
	}

	if err := checkExpect(scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// runStep executes one operation and maps its outcome to a StepResult.
// A step failing without expect_error, or succeeding with one, is an
// error that aborts the run.
func runStep(ctx context.Context, m *loop.Machine, step Step) (StepResult, error) {
	identity := step.Identity
	if identity == "" {
		identity = policy.Orchestrator
	}

	var err error
	switch step.Op {
	case "dispatch":
		if _, rerr := m.Receive(ctx, step.Pac); rerr != nil {
			if code, ok := violationCode(rerr); !ok || code != loop.CodeDuplicateSession {
				err = rerr
			}
		}
		if err == nil {
			_, err = m.Dispatch(ctx, step.Pac)
		}
	case "receive_wrap":
		_, err = m.ReceiveWrap(ctx, step.Pac, step.ID, step.Issuer, payloadOf(step))
	case "issue_ber":
		_, err = m.IssueBER(ctx, step.Pac, step.ID, identity, artifact.Decision(step.Decision), payloadOf(step))
	case "emit_ber":
		_, err = m.EmitBER(ctx, step.Pac, identity)
	case "create_pdo":
		var deps []graph.Edge
		deps, err = parseDeps(step.Deps)
		if err == nil {
			_, err = m.CreatePDO(ctx, step.Pac, step.ID, identity, step.Outcome, payloadOf(step), deps)
		}
	case "timeout":
		_, err = m.Timeout(ctx, step.Pac)
	case "invalidate":
		_, err = m.Invalidate(ctx, step.Pac, step.Reason)
	default:
		return StepResult{}, fmt.Errorf("unknown op %q", step.Op)
	}

	sr := StepResult{Op: step.Op, Pac: step.Pac}
	if s, ok := m.Session(step.Pac); ok {
		sr.State = string(s.State)
	}

	if err != nil {
		code, ok := violationCode(err)
		if !ok {
			return StepResult{}, fmt.Errorf("unexpected failure: %w", err)
		}
		sr.Error = string(code)
		if step.ExpectError == "" {
			return StepResult{}, fmt.Errorf("unexpected violation %s: %w", code, err)
		}
		if step.ExpectError != string(code) {
			return StepResult{}, fmt.Errorf("expected violation %s, got %s", step.ExpectError, code)
		}
		return sr, nil
	}
	if step.ExpectError != "" {
		return StepResult{}, fmt.Errorf("expected violation %s, but step succeeded", step.ExpectError)
	}
	return sr, nil
}

// checkExpect enforces the scenario's final expectations.
func checkExpect(scenario *Scenario, result *Result) error {
	for pac, want := range scenario.Expect.States {
		got, ok := result.Sessions[pac]
		if !ok {
			return fmt.Errorf("expect.states: no session for %s", pac)
		}
		if got != want {
			return fmt.Errorf("expect.states: %s is %s, want %s", pac, got, want)
		}
	}
	if scenario.Expect.Records != nil && len(result.Records) != *scenario.Expect.Records {
		return fmt.Errorf("expect.records: got %d, want %d", len(result.Records), *scenario.Expect.Records)
	}
	if scenario.Expect.ChainOK != nil && result.ChainOK != *scenario.Expect.ChainOK {
		return fmt.Errorf("expect.chain_ok: got %v, want %v", result.ChainOK, *scenario.Expect.ChainOK)
	}
	return nil
}

func payloadOf(step Step) artifact.Object {
	if len(step.Payload) == 0 {
		return nil
	}
	obj := make(artifact.Object, len(step.Payload))
	for k, v := range step.Payload {
		obj[k] = artifact.Text(v)
	}
	return obj
}

// parseDeps converts upstream:downstream:TYPE strings to graph edges.
func parseDeps(raw []string) ([]graph.Edge, error) {
	edges := make([]graph.Edge, 0, len(raw))
	for _, d := range raw {
		parts := strings.Split(d, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid dep %q: want upstream:downstream:TYPE", d)
		}
		typ := graph.EdgeType(parts[2])
		if !graph.ValidEdgeTypes[typ] {
			return nil, fmt.Errorf("invalid dep type %q", parts[2])
		}
		edges = append(edges, graph.Edge{UpstreamID: parts[0], DownstreamID: parts[1], Type: typ})
	}
	return edges, nil
}

func violationCode(err error) (loop.ViolationCode, bool) {
	var v *loop.Violation
	if errors.As(err, &v) {
		return v.Code, true
	}
	return "", false
}

// seqTokens hands out tok-1, tok-2, ... so dispatch tokens in golden
// traces are stable.
type seqTokens struct{ n int }

func (g *seqTokens) Generate() string {
	g.n++
	return fmt.Sprintf("tok-%d", g.n)
}
