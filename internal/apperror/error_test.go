package apperror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew_UsesMessageTable(t *testing.T) {
	err := New(CodeStaleData, WithContext("gas:42161"), WithCause(errors.New("age 3s")))

	if err.Message != messages[CodeStaleData] {
		t.Errorf("Message = %q, want %q", err.Message, messages[CodeStaleData])
	}
	if got := err.Error(); !strings.Contains(got, "gas:42161") || !strings.HasSuffix(got, "age 3s") {
		t.Errorf("Error() = %q", got)
	}
}

func TestIs_ComparesCodes(t *testing.T) {
	err := fmt.Errorf("cycle: %w", New(CodeCycleAborted))

	if !errors.Is(err, New(CodeCycleAborted)) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(err, New(CodeStaleData)) {
		t.Error("expected different codes not to match")
	}
}

func TestHasCode_WalksCauses(t *testing.T) {
	inner := New(CodeCircuitOpen)
	outer := New(CodeBusPublishFailed, WithCause(inner))

	if !HasCode(outer, CodeCircuitOpen) {
		t.Error("expected HasCode to find wrapped circuit code")
	}
	if HasCode(outer, CodeStorageError) {
		t.Error("unexpected code match")
	}
	if GetCode(errors.New("plain")) != CodeUnknownError {
		t.Error("expected unknown code for plain errors")
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{New(CodeRPCConnectionFailed), true},
		{fmt.Errorf("publish: %w", New(CodeCircuitOpen)), true},
		{New(CodeStaleData), false},
		{New(CodePolicyViolation), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := Transient(tt.err); got != tt.want {
			t.Errorf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestLogArgs(t *testing.T) {
	args := New(CodeStorageError, WithContext("insert outcome c1")).LogArgs()
	if len(args) < 4 || args[0] != "code" || args[1] != "STORAGE_ERROR" || args[3] != "insert outcome c1" {
		t.Errorf("LogArgs = %v", args[:min(len(args), 4)])
	}
}
