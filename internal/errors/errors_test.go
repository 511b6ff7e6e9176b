package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestDebugError_ErrorIncludesHint(t *testing.T) {
	err := NotStopped("stackTrace")
	want := "stackTrace requires the target to be stopped | Hint: Pause the target first."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"debug error drops hint", NotStopped("next"), "next requires the target to be stopped"},
		{"wrapped debug error", fmt.Errorf("launch: %w", LaunchTimeout()), "Timeout waiting for gdb server to start"},
		{"plain error", stderrors.New("boom"), "boom"},
		{"server line kept verbatim", ServerReported("Error: unable to open CMSIS-DAP device"), "Error: unable to open CMSIS-DAP device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.err); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("scan: %w", NoFreePort(50000, 10))
	if !HasCode(err, CodeNoFreePort) {
		t.Error("expected NO_FREE_PORT through wrapping")
	}
	if HasCode(err, CodeLaunchTimeout) {
		t.Error("unexpected LAUNCH_TIMEOUT")
	}
	if HasCode(stderrors.New("plain"), CodeNoFreePort) {
		t.Error("plain error must not carry a code")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("exec: \"openocd\": executable file not found in $PATH")
	err := SpawnFailed("openocd", cause)
	if !stderrors.Is(err, cause) {
		t.Error("SpawnFailed should unwrap to its cause")
	}
	if err.Details["command"] != "openocd" {
		t.Errorf("command detail = %v", err.Details["command"])
	}
}

func TestNoFreePort_Range(t *testing.T) {
	err := NoFreePort(4444, 3)
	if err.Message != "no free TCP port in range 4444-4446" {
		t.Errorf("Message = %q", err.Message)
	}
}
