package envdetect

import (
	"testing"

	"github.com/starford/izy/internal/bus"
)

func TestDetectPriority(t *testing.T) {
	frame, runtime := bus.Pipe()
	defer frame.Close()

	tests := []struct {
		name string
		env  Environment
		want Strategy
	}{
		{"nested frame wins over runtime", Environment{Frame: frame, Runtime: runtime}, SandboxRelay},
		{"runtime only", Environment{Runtime: runtime}, BackgroundMessaging},
		{"nothing available", Environment{}, DirectNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (EnvDetector{Env: tt.env}).Detect(); got != tt.want {
				t.Errorf("Detect() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFixed(t *testing.T) {
	if got := Fixed(BackgroundMessaging).Detect(); got != BackgroundMessaging {
		t.Errorf("Fixed.Detect() = %s", got)
	}
	if DirectNetwork.String() != "direct" || SandboxRelay.String() != "sandbox-relay" {
		t.Error("unexpected strategy names")
	}
}
