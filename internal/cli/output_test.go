package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruletrace/internal/compiler"
	"github.com/roach88/ruletrace/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"id": "abc"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)

	_, err = uuid.Parse(resp.TraceID)
	assert.NoError(t, err, "trace_id should be a uuid")
}

func TestOutputFormatter_TraceIDPerResponse(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success("a"))
	var first CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &first))

	buf.Reset()
	require.NoError(t, formatter.Error(ErrCodeGeneric, "b", nil))
	var second CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &second))

	assert.NotEqual(t, first.TraceID, second.TraceID)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeCompileFailed, "compilation failed", map[string]string{"file": "r.cue"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E003", resp.Error.Code)
	assert.Equal(t, "compilation failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("All parties match"))
	assert.Contains(t, buf.String(), "All parties match")

	buf.Reset()
	require.NoError(t, formatter.Error("E001", "broken", map[string]string{"k": "v"}))
	assert.Contains(t, buf.String(), "Error [E001]: broken")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E001", "broken", map[string]string{"k": "v"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "rule.cue")

			assert.Empty(t, out.String(), "verbose logs must not corrupt JSON output")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Processing rule.cue")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestOutputFormatter_FailUsesIRCode(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := ir.UnknownColumn("zz", "column is not declared").WithParty("alice")
	err := formatter.Fail(ExitFailure, "apply rule", fmt.Errorf("wrapped: %w", cause))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsUnknownColumn(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_COLUMN", resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "zz", details["column"])
	assert.Equal(t, "alice", details["party"])
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "INVALID_RULE", errorCode(ir.InvalidRule("a", "bad")))
	assert.Equal(t, ErrCodeCompileFailed, errorCode(fmt.Errorf("rule r: %w", &compiler.CompileError{Field: "kind", Message: "kind is required"})))
	assert.Equal(t, ErrCodeGeneric, errorCode(errors.New("plain")))
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "writing output file", cause)
	assert.Equal(t, "writing output file: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, "no scenarios", NewExitError(ExitFailure, "no scenarios").Error())
}
