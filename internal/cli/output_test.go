package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accsubmit/internal/errs"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_Result(t *testing.T) {
	data := map[string]int{"jobs": 6}
	text := func(w io.Writer) { fmt.Fprintln(w, "6 jobs submitted") }

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Result(data, text))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]any{"jobs": float64(6)}, resp.Data)
		assert.NotContains(t, buf.String(), "submitted")
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, f.Result(data, text))
		assert.Equal(t, "6 jobs submitted\n", buf.String())
	})
}

func TestOutputFormatter_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, f.Error(ErrCodeRemote, "upload failed", nil))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRemote, resp.Error.Code)
	assert.Equal(t, "upload failed", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)

	buf.Reset()
	f = &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Error(ErrCodeRemote, "upload failed", map[string]string{"path": "/alice/sim"}))
	assert.Equal(t, "Error [E301]: upload failed\n", buf.String())

	buf.Reset()
	f.Verbose = true
	require.NoError(t, f.Error(ErrCodeRemote, "upload failed", map[string]string{"path": "/alice/sim"}))
	assert.Contains(t, buf.String(), "Details: map[path:/alice/sim]")
}

func TestOutputFormatter_FailCarriesKindDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	cause := errs.New(errs.Remote, "submit refused").WithRun(195682).WithPath("/alice/sim/run.jdl")
	err := f.Fail("SUBMIT failed", fmt.Errorf("batch: %w", cause))

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	resp := decodeResponse(t, buf)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRemote, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "SUBMIT failed: batch:")
	assert.Equal(t, map[string]any{
		"kind": "REMOTE",
		"path": "/alice/sim/run.jdl",
		"run":  float64(195682),
	}, resp.Error.Details)
}

func TestOutputFormatter_FailExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{"configuration", errs.New(errs.Configuration, "remote_dir is required"), ErrCodeConfig, ExitCommandError},
		{"invalid name", errs.New(errs.InvalidName, "FOO"), ErrCodeInvalidVar, ExitCommandError},
		{"conflict", errs.New(errs.Conflict, "exists"), ErrCodeConflict, ExitFailure},
		{"trigger", errs.New(errs.TriggerResolution, "CMUL7"), ErrCodeTrigger, ExitFailure},
		{"plain", errors.New("boom"), ErrCodeGeneric, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf}
			err := f.Fail("failed", tt.err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.Contains(t, buf.String(), "Error ["+tt.wantCode+"]")
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}

	f.VerboseLog("processing run %d", 195682)
	assert.Empty(t, diag.String())

	f.Verbose = true
	f.VerboseLog("processing run %d", 195682)
	assert.Equal(t, "processing run 195682\n", diag.String())
	assert.Empty(t, out.String())

	f.ErrWriter = nil
	f.VerboseLog("removed %s", "sim.C")
	assert.Equal(t, "removed sim.C\n", out.String())
}

func TestExitError(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitFailure, "upload failed", inner)
	assert.Equal(t, "upload failed: disk full", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad config")))
	assert.Equal(t, "bad config", NewExitError(ExitCommandError, "bad config").Error())
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
