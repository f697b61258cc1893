package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"testing"

	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error", apperrors.Synthesis(goerrors.New("x")), "synthesis"},
		{"wrapped app error", fmt.Errorf("outer: %w", apperrors.Conflictf("dup")), "conflict"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"path error", &os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, "errors_errorstring"},
		{"plain", goerrors.New("boom"), "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
