package errors

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredAttributesDriveDefaults(t *testing.T) {
	code := Code("TEST_REGISTERED")
	Register(code, Attributes{Message: "registered", Severity: SeverityCritical, Retryable: true, Alert: true})

	err := New(code, "")
	assert.Equal(t, "registered", err.Message())
	assert.True(t, err.Retryable())
	assert.True(t, err.ShouldAlert())
	assert.Equal(t, SeverityCritical, err.Severity())
}

func TestOptionsOverrideRegistry(t *testing.T) {
	err := New(CodeStorageFailure, "disk full", WithRetryable(false), WithAlert(false), WithSeverity(SeverityInfo))
	assert.False(t, err.Retryable())
	assert.False(t, err.ShouldAlert())
	assert.Equal(t, SeverityInfo, err.Severity())
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(CodeTimeout, cause, "call timed out", WithMetadata("stage", "submit")))

	require.ErrorIs(t, err, cause)
	assert.True(t, stdErrors.Is(err, New(CodeTimeout, "")))
	assert.Equal(t, CodeTimeout, CodeOf(err))
	assert.Equal(t, "submit", MetadataOf(err, "stage"))
	assert.True(t, RetryableError(err))
}

func TestUnknownFallback(t *testing.T) {
	err := stdErrors.New("plain")
	assert.Equal(t, CodeUnknown, CodeOf(err))
	assert.False(t, RetryableError(err))
	assert.Equal(t, SeverityCritical, SeverityOf(err))
	assert.Empty(t, MetadataOf(err, "stage"))

	attr := AttributesOf(Code("NEVER_REGISTERED"))
	assert.Equal(t, "unknown error", attr.Message)
}

func TestWithKeepsOverridesAndOriginal(t *testing.T) {
	base := Wrap(CodeStorageFailure, stdErrors.New("io"), "write failed", WithRetryable(false))
	staged := base.With(WithMetadata("stage", "submit"))

	assert.Equal(t, "submit", MetadataOf(staged, "stage"))
	assert.Empty(t, MetadataOf(base, "stage"))
	assert.False(t, staged.Retryable())
	assert.Equal(t, base.Error(), staged.Error())
}

func TestLogValueGroupsMetadata(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	log.Info("failed", slog.Any("error", New(CodeTimeout, "rpc timeout", WithMetadata("stage", "prepare"))))

	var entry struct {
		Error map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "TIMEOUT", entry.Error["code"])
	assert.Equal(t, "prepare", entry.Error["stage"])
}

var sentinelBeforeRegister = New(Code("TEST_LATE_REGISTERED"), "late")

func TestSentinelSeesLateRegistration(t *testing.T) {
	Register(Code("TEST_LATE_REGISTERED"), Attributes{Severity: SeverityWarning, Retryable: true})
	assert.True(t, sentinelBeforeRegister.Retryable())
	assert.False(t, sentinelBeforeRegister.ShouldAlert())
	assert.Equal(t, SeverityWarning, sentinelBeforeRegister.Severity())
}
