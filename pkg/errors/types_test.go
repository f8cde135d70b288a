package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeChangesetRejected, "section 1 does not exist")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != ErrCodeChangesetRejected {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeChangesetRejected)
	}

	if err.Message != "section 1 does not exist" {
		t.Errorf("Message = %v, want 'section 1 does not exist'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}

	if err.Retryable {
		t.Error("Retryable should default to false")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrCodeInvalidInput, "row %d out of range", 7)
	if err.Message != "row 7 out of range" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("provider exploded")
	err := Wrap(underlying, ErrCodeBuildFailed, "component construction failed")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if !strings.Contains(err.Error(), "provider exploded") {
		t.Error("Error string should include underlying error")
	}

	if !strings.Contains(err.Error(), "BUILD_FAILED") {
		t.Error("Error string should include error code")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "test"); err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestWithContext_SortedInMessage(t *testing.T) {
	err := New(ErrCodeChangesetRejected, "bad path").
		WithContext("section", 1).
		WithContext("item", 4)

	if err.Context["section"] != 1 {
		t.Error("Context should contain 'section' key")
	}

	msg := err.Error()
	if !strings.Contains(msg, "{item: 4, section: 1}") {
		t.Errorf("context should be rendered in key order, got %q", msg)
	}
}

func TestWithRetryable(t *testing.T) {
	err := New(ErrCodeBuildFailed, "transient").WithRetryable(true)

	if !err.IsRetryable() {
		t.Error("IsRetryable should return true")
	}
	if !IsRetryable(fmt.Errorf("outer: %w", err)) {
		t.Error("IsRetryable should see through wrapping")
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrCodeBuildFailed, "failed")

	if !IsCode(err, ErrCodeBuildFailed) {
		t.Error("IsCode should return true for matching code")
	}

	if IsCode(err, ErrCodeChangesetRejected) {
		t.Error("IsCode should return false for non-matching code")
	}

	if IsCode(nil, ErrCodeBuildFailed) {
		t.Error("IsCode should return false for nil error")
	}

	if IsCode(errors.New("standard error"), ErrCodeInternal) {
		t.Error("IsCode should return false for plain errors")
	}
}

func TestIsCode_Nested(t *testing.T) {
	inner := New(ErrCodeChangesetRejected, "index out of range")
	outer := Wrap(inner, ErrCodeBuildFailed, "dropped from batch")

	if !IsCode(outer, ErrCodeChangesetRejected) {
		t.Error("IsCode should find codes on wrapped structured errors")
	}
	if !IsCode(fmt.Errorf("context: %w", outer), ErrCodeBuildFailed) {
		t.Error("IsCode should see through fmt wrapping")
	}
}

func TestGetCode(t *testing.T) {
	if code := GetCode(New(ErrCodeClosed, "closed")); code != ErrCodeClosed {
		t.Errorf("GetCode = %v, want %v", code, ErrCodeClosed)
	}

	if GetCode(nil) != "" {
		t.Error("GetCode should return empty string for nil")
	}

	if GetCode(errors.New("standard")) != ErrCodeInternal {
		t.Error("GetCode should return ErrCodeInternal for plain errors")
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrCodeInternal, "test error")

	trace := err.StackTrace()
	if !strings.Contains(trace, "Stack trace:") {
		t.Error("StackTrace should contain header")
	}
	if len(err.Stack) == 0 {
		t.Error("Stack should have frames")
	}
}

func TestCaptureStack(t *testing.T) {
	frames := captureStack(0)

	found := false
	for _, frame := range frames {
		if strings.Contains(frame.Function, "TestCaptureStack") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Stack should contain the calling test frame")
	}
}

func TestRemediation(t *testing.T) {
	err := New(ErrCodeBuildFailed, "failed").
		WithUserMessage("rows could not be rendered").
		WithRemediation("reload the data source")

	if err.UserMessage == "" || len(err.Remediation) != 1 {
		t.Error("user message and remediation should be recorded")
	}
	if err.WithRemediation() != err || len(err.Remediation) != 1 {
		t.Error("empty remediation should be a no-op")
	}
}
