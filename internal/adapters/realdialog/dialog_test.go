package realdialog

import (
	"testing"

	"github.com/acolita/appliance-shell/internal/ports"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		req  ports.CredentialRequest
		want string
	}{
		{"host only", ports.CredentialRequest{Host: "10.0.0.1"}, "10.0.0.1"},
		{"user and host", ports.CredentialRequest{Host: "10.0.0.1", User: "admin"}, "admin@10.0.0.1"},
		{"named appliance", ports.CredentialRequest{Appliance: "ap-lobby", Host: "10.0.0.1", User: "admin"}, "ap-lobby (admin@10.0.0.1)"},
		{"name equals host", ports.CredentialRequest{Appliance: "10.0.0.1", Host: "10.0.0.1"}, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describe(tt.req); got != tt.want {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
