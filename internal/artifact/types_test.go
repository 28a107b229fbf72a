package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWrap(t *testing.T) {
	a, err := NewWrap("W1", "PAC-100", "AGENT-7", Object{"proof": Text("diff")}, testTime)
	require.NoError(t, err)

	assert.Equal(t, "W1", a.ID)
	assert.Equal(t, KindWrap, a.Kind)
	assert.Equal(t, "PAC-100", a.PacID)
	assert.Empty(t, a.ParentID, "a WRAP responds directly to the PAC")
	assert.True(t, IsDigest(a.ContentHash))
	assert.Equal(t, testTime, a.CreatedAt)
}

func TestNewWrapValidation(t *testing.T) {
	_, err := NewWrap("", "PAC-100", "AGENT-7", nil, testTime)
	assert.Error(t, err, "empty id")

	_, err = NewWrap("W1", "", "AGENT-7", nil, testTime)
	assert.Error(t, err, "empty pac id")

	_, err = NewWrap("W1", "PAC-100", "", nil, testTime)
	assert.Error(t, err, "empty issuer")
}

func TestNewBERCarriesDecision(t *testing.T) {
	a, err := NewBER("B1", "PAC-100", "W1", "ORCHESTRATOR", DecisionApprove, nil, testTime)
	require.NoError(t, err)

	assert.Equal(t, KindBER, a.Kind)
	assert.Equal(t, "W1", a.ParentID)
	assert.Equal(t, DecisionApprove, a.Decision())
}

func TestNewBERRejectsUnknownDecision(t *testing.T) {
	_, err := NewBER("B1", "PAC-100", "W1", "ORCHESTRATOR", Decision("MAYBE"), nil, testTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decision")
}

func TestNewPDOBindsUpstreamHashes(t *testing.T) {
	wrap, err := NewWrap("W1", "PAC-100", "AGENT-7", Object{"proof": Text("p")}, testTime)
	require.NoError(t, err)
	ber, err := NewBER("B1", "PAC-100", "W1", "ORCHESTRATOR", DecisionApprove, nil, testTime)
	require.NoError(t, err)

	pdo, err := NewPDO("P1", "PAC-100", "B1", "ORCHESTRATOR", "MERGED", wrap.ContentHash, ber.ContentHash, nil, testTime)
	require.NoError(t, err)

	assert.Equal(t, Text(wrap.ContentHash), pdo.Payload[KeyWrapHash])
	assert.Equal(t, Text(ber.ContentHash), pdo.Payload[KeyBERHash])
	assert.Equal(t, Text("MERGED"), pdo.Payload[KeyOutcome])
}

func TestNewPDORejectsMalformedDigests(t *testing.T) {
	_, err := NewPDO("P1", "PAC-100", "B1", "ORCHESTRATOR", "MERGED", "not-a-hash", GenesisHash, nil, testTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed wrap hash")

	_, err = NewPDO("P1", "PAC-100", "B1", "ORCHESTRATOR", "MERGED", GenesisHash, "nope", nil, testTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed ber hash")
}

func TestArtifactEqual(t *testing.T) {
	a1, err := NewWrap("W1", "PAC-100", "AGENT-7", Object{"proof": Text("p")}, testTime)
	require.NoError(t, err)
	a2, err := NewWrap("W2", "PAC-100", "AGENT-7", Object{"proof": Text("p")}, testTime)
	require.NoError(t, err)
	a3, err := NewWrap("W1", "PAC-100", "AGENT-7", Object{"proof": Text("q")}, testTime)
	require.NoError(t, err)

	assert.True(t, a1.Equal(a2), "id does not participate in content equality")
	assert.False(t, a1.Equal(a3))
}

func TestDecisionOnNonBER(t *testing.T) {
	a, err := NewWrap("W1", "PAC-100", "AGENT-7", nil, testTime)
	require.NoError(t, err)
	assert.Empty(t, a.Decision())
}
