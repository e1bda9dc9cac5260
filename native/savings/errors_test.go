package savings

import (
	"errors"
	"fmt"
	"testing"

	nativecommon "savingsgame/native/common"
)

func TestErrorMatchesByKindAndReason(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("join: %w", wrap(ErrStrategyDeposit, cause))

	if !errors.Is(err, ErrStrategyDeposit) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to stay visible")
	}
	if errors.Is(err, ErrStrategyWithdraw) {
		t.Fatalf("different reason must not match")
	}
	if !IsKind(err, KindExternalCall) || KindOf(err) != KindExternalCall {
		t.Fatalf("expected external call kind, got %q", KindOf(err))
	}
	if IsKind(cause, KindExternalCall) || KindOf(cause) != "" {
		t.Fatalf("plain errors carry no kind")
	}

	paused := wrap(ErrPaused, nativecommon.ErrModulePaused)
	if !errors.Is(paused, ErrPaused) || !errors.Is(paused, nativecommon.ErrModulePaused) {
		t.Fatalf("expected pause error to match both sentinels")
	}
	if got := paused.Error(); got != "savings: game paused: module paused" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestInvalidParamMatchesSentinel(t *testing.T) {
	err := invalidParam("deposit count must be positive")
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation kind")
	}
}
