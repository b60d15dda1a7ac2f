package tui

import (
	"strings"
	"testing"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/wa"
)

func TestAuthStepFor(t *testing.T) {
	tests := []struct {
		name     string
		evt      api.AuthEvent
		wantStep authStep
		wantText string
	}{
		{"qr", api.AuthEvent{Type: string(wa.AuthEventQRCode), QRCode: "2@abc"}, authShowQR, "2@abc"},
		{"authenticated", api.AuthEvent{Type: string(wa.AuthEventAuthenticated)}, authDone, "Authenticated"},
		{"failed with reason", api.AuthEvent{Type: string(wa.AuthEventAuthFailed), Message: "device banned"}, authFailed, "device banned"},
		{"timeout without reason", api.AuthEvent{Type: string(wa.AuthEventTimeout)}, authFailed, "Authentication failed"},
		{"unknown", api.AuthEvent{Type: "paired_elsewhere"}, authIgnore, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, text := authStepFor(&tt.evt)
			if step != tt.wantStep {
				t.Errorf("step = %v, want %v", step, tt.wantStep)
			}
			if !strings.Contains(text, tt.wantText) {
				t.Errorf("text = %q, want it to contain %q", text, tt.wantText)
			}
		})
	}
}
