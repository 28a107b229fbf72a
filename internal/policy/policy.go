// Package policy loads the authority registry: which identities may perform
// the gated governance operations, and in which color lane they operate.
//
// Authority is a capability-list lookup, not a role hierarchy. The registry
// is declared in CUE and validated against the embedded schema before use.
package policy

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Operation names for the capability lists. These match the operation
// strings accepted by the schema.
const (
	OpDispatch    = "dispatch"
	OpReceiveWrap = "receive_wrap"
	OpIssueBER    = "issue_ber"
	OpEmitBER     = "emit_ber"
	OpCreatePDO   = "create_pdo"
	OpInvalidate  = "invalidate"
)

// Orchestrator is the built-in sole decision authority.
const Orchestrator = "ORCHESTRATOR"

// Authority is one registered identity.
type Authority struct {
	Identity   string   `json:"identity"`
	Lane       string   `json:"lane"`
	Operations []string `json:"operations"`
}

// Policy holds the authority registry.
type Policy struct {
	authorities map[string]Authority
}

// IsAuthorized reports whether identity may perform op.
// Unknown identities are never authorized (fail-closed).
func (p *Policy) IsAuthorized(identity, op string) bool {
	auth, ok := p.authorities[identity]
	if !ok {
		return false
	}
	for _, allowed := range auth.Operations {
		if allowed == op {
			return true
		}
	}
	return false
}

// Authorities returns the registered identities.
func (p *Policy) Authorities() []Authority {
	out := make([]Authority, 0, len(p.authorities))
	for _, a := range p.authorities {
		out = append(out, a)
	}
	return out
}

// Lane returns the color lane of an identity, or "" if unregistered.
func (p *Policy) Lane(identity string) string {
	return p.authorities[identity].Lane
}

// Default returns the built-in registry: the orchestrator alone holds the
// full decision capability set.
func Default() *Policy {
	return &Policy{authorities: map[string]Authority{
		Orchestrator: {
			Identity:   Orchestrator,
			Lane:       "blue",
			Operations: []string{OpDispatch, OpReceiveWrap, OpIssueBER, OpEmitBER, OpCreatePDO, OpInvalidate},
		},
	}}
}

// Load reads a CUE policy file, unifies it with the embedded schema, and
// decodes the authority registry. Any schema violation fails the load; an
// invalid policy must never silently degrade to the default.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse compiles policy source against the embedded schema.
func Parse(src []byte, filename string) (*Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("policy: internal schema: %w", err)
	}

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(filename, err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(filename, err)
	}

	authoritiesVal := unified.LookupPath(cue.ParsePath("policy.authorities"))
	if !authoritiesVal.Exists() {
		return nil, fmt.Errorf("policy: %s: policy.authorities is required", filename)
	}

	p := &Policy{authorities: make(map[string]Authority)}
	iter, err := authoritiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(filename, err)
	}
	for iter.Next() {
		identity := iter.Selector().Unquoted()
		var auth Authority
		if err := iter.Value().Decode(&auth); err != nil {
			return nil, formatCUEError(filename, err)
		}
		auth.Identity = identity
		if len(auth.Operations) == 0 {
			return nil, fmt.Errorf("policy: %s: authority %q grants no operations", filename, identity)
		}
		p.authorities[identity] = auth
	}

	if len(p.authorities) == 0 {
		return nil, fmt.Errorf("policy: %s: at least one authority is required", filename)
	}
	return p, nil
}

// formatCUEError flattens CUE's multi-error into one readable message with
// positions.
func formatCUEError(filename string, err error) error {
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		msgs = append(msgs, e.Error())
	}
	if len(msgs) == 0 {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("policy: %s: %s", filename, msgs[0])
}
