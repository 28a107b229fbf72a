package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden-file shape of a scenario run. Content and
// record hashes are excluded on purpose: the snapshot pins the observable
// behavior, not digest values.
type TraceSnapshot struct {
	Scenario string            `json:"scenario"`
	Steps    []StepResult      `json:"steps"`
	Sessions map[string]string `json:"sessions"`
	Records  []RecordLine      `json:"records"`
	ChainOK  bool              `json:"chain_ok"`
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	snapshot := TraceSnapshot{
		Scenario: scenario.Name,
		Steps:    result.Steps,
		Sessions: result.Sessions,
		Records:  result.Records,
		ChainOK:  result.ChainOK,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
