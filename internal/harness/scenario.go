package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a sequence of governance
// operations and the expectations over the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are executed in order against one machine.
	Steps []Step `yaml:"steps"`

	// Expect validates the final trace and session states.
	Expect Expect `yaml:"expect"`
}

// Step is a single machine operation.
type Step struct {
	// Op is the operation name: dispatch, receive_wrap, issue_ber,
	// emit_ber, create_pdo, timeout, invalidate.
	Op string `yaml:"op"`

	// Pac identifies the session the operation targets.
	Pac string `yaml:"pac"`

	// ID is the artifact id for receive_wrap, issue_ber, and create_pdo.
	ID string `yaml:"id,omitempty"`

	// Issuer is the WRAP issuer for receive_wrap.
	Issuer string `yaml:"issuer,omitempty"`

	// Identity is the caller for authority-gated operations.
	// Defaults to the built-in orchestrator.
	Identity string `yaml:"identity,omitempty"`

	// Decision is the verdict for issue_ber: APPROVE or REJECT.
	Decision string `yaml:"decision,omitempty"`

	// Outcome is the outcome text for create_pdo.
	Outcome string `yaml:"outcome,omitempty"`

	// Reason is the reason code for invalidate.
	Reason string `yaml:"reason,omitempty"`

	// Payload carries artifact payload fields. String values only; the
	// scenarios exercise the loop, not the codec.
	Payload map[string]string `yaml:"payload,omitempty"`

	// Deps declares dependency edges for create_pdo, each written as
	// upstream:downstream:TYPE.
	Deps []string `yaml:"deps,omitempty"`

	// ExpectError names the violation code this step must fail with.
	// A step without ExpectError must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expect validates the state of the world after all steps ran.
type Expect struct {
	// States maps pac id to the expected final session state.
	States map[string]string `yaml:"states,omitempty"`

	// Records is the expected total number of audit records.
	Records *int `yaml:"records,omitempty"`

	// ChainOK asserts the outcome of full chain verification.
	ChainOK *bool `yaml:"chain_ok,omitempty"`
}

// Operation names accepted in scenario steps.
var validOps = map[string]bool{
	"dispatch":     true,
	"receive_wrap": true,
	"issue_ber":    true,
	"emit_ber":     true,
	"create_pdo":   true,
	"timeout":      true,
	"invalidate":   true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping assertions.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if !validOps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Pac == "" {
			return fmt.Errorf("steps[%d]: pac is required", i)
		}
		switch step.Op {
		case "receive_wrap":
			if step.ID == "" || step.Issuer == "" {
				return fmt.Errorf("steps[%d]: receive_wrap requires id and issuer", i)
			}
		case "issue_ber":
			if step.ID == "" || step.Decision == "" {
				return fmt.Errorf("steps[%d]: issue_ber requires id and decision", i)
			}
		case "create_pdo":
			if step.ID == "" || step.Outcome == "" {
				return fmt.Errorf("steps[%d]: create_pdo requires id and outcome", i)
			}
		case "invalidate":
			if step.Reason == "" {
				return fmt.Errorf("steps[%d]: invalidate requires reason", i)
			}
		}
	}

	if s.Expect.States == nil && s.Expect.Records == nil && s.Expect.ChainOK == nil {
		return fmt.Errorf("expect must assert at least one of states, records, chain_ok")
	}
	return nil
}
