package security

import "testing"

func TestCommandFilter_DefaultBlocklist(t *testing.T) {
	cf, err := NewCommandFilter(DefaultBlocklist(), nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		cmd     string
		allowed bool
	}{
		{"show version", true},
		{"no more", true},
		{"reboot", false},
		{"  reload now", false},
		{"factory-reset", false},
		{"reset", false},
		{"erase flash", false},
		{"show reboot-history", true},
	}
	for _, tt := range tests {
		got, reason := cf.IsAllowed(tt.cmd)
		if got != tt.allowed {
			t.Errorf("IsAllowed(%q) = %v (%s), want %v", tt.cmd, got, reason, tt.allowed)
		}
	}
}

func TestCommandFilter_Allowlist(t *testing.T) {
	cf, err := NewCommandFilter([]string{`secret`}, []string{`^show `})
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := cf.IsAllowed("show interfaces"); !ok {
		t.Error("show should be allowed")
	}
	if ok, reason := cf.IsAllowed("hostname x"); ok || reason != "command not in allowlist" {
		t.Errorf("IsAllowed(hostname) = %v, %q", ok, reason)
	}
	if ok, _ := cf.IsAllowed("show secret"); ok {
		t.Error("blocklist must win over allowlist")
	}
}

func TestCommandFilter_InvalidPattern(t *testing.T) {
	if _, err := NewCommandFilter([]string{"("}, nil); err == nil {
		t.Error("invalid blocklist pattern accepted")
	}
	if _, err := NewCommandFilter(nil, []string{"["}); err == nil {
		t.Error("invalid allowlist pattern accepted")
	}
}
