package pipeline

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "compile", err: fmt.Errorf("%w: gcc exited 1", ErrCompile), want: KindCompile},
		{name: "unresolved", err: fmt.Errorf("%w: libssl.so.3", ErrUnresolvedDependency), want: KindUnresolvedDependency},
		{name: "assembly", err: fmt.Errorf("%w: chown failed", ErrAssembly), want: KindAssembly},
		{name: "slimming", err: fmt.Errorf("%w: tool exited 2", ErrSlimming), want: KindSlimming},
		{name: "auth", err: fmt.Errorf("%w: ghcr.io", ErrAuth), want: KindAuth},
		{name: "push", err: fmt.Errorf("%w: connection reset", ErrPush), want: KindPush},
		{name: "transition", err: fmt.Errorf("%w: done to building", ErrTransition), want: KindInternal},
		{name: "unknown", err: errors.New("disk full"), want: KindInternal},
		{name: "deeply wrapped", err: fmt.Errorf("run 7: %w", fmt.Errorf("%w: not found", ErrPush)), want: KindPush},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
