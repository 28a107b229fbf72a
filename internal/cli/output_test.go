package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitErrorMessage(t *testing.T) {
	e := NewExitError(ExitFailure, "chain broken")
	assert.Equal(t, "chain broken", e.Error())

	wrapped := WrapExitError(ExitCommandError, "failed to open database", errors.New("no such file"))
	assert.Equal(t, "failed to open database: no such file", wrapped.Error())
	assert.Equal(t, "no such file", errors.Unwrap(wrapped).Error())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "violation")))
}

func TestWriteJSONEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, writeJSON(buf, map[string]string{"pac_id": "PAC-1"}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestWriteJSONErrorEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, writeJSONError(buf, "AUTHORITY_VIOLATION", "not authorized", "PAC-1"))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "AUTHORITY_VIOLATION", resp.Error.Code)
	assert.Equal(t, "PAC-1", resp.Error.PacID)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
}

func TestParseDeps(t *testing.T) {
	edges, err := parseDeps([]string{"A:B:DATA", "B:C:APPROVAL"})
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "A", edges[0].UpstreamID)
	assert.Equal(t, "B", edges[0].DownstreamID)

	_, err = parseDeps([]string{"A:B"})
	require.Error(t, err)
	_, err = parseDeps([]string{"A:B:NOPE"})
	require.Error(t, err)
	_, err = parseDeps([]string{":B:DATA"})
	require.Error(t, err)
}
