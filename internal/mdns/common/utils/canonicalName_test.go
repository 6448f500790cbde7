package utils

import "testing"

func TestCanonicalDNSName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name without trailing dot", "printer.local", "printer.local"},
		{"simple name with trailing dot", "printer.local.", "printer.local"},
		{"uppercase", "HP.LOCAL", "hp.local"},
		{"mixed case service type", "_IPP._Tcp.Local.", "_ipp._tcp.local"},
		{"surrounding whitespace", "  hp.local \t", "hp.local"},
		{"multiple trailing dots", "hp.local...", "hp.local"},
		{"empty", "", ""},
		{"only dots", "...", ""},
		{"escaped trailing dot kept", `odd\.`, `odd\.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalDNSName(tt.input); got != tt.expected {
				t.Errorf("CanonicalDNSName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTrimDot_PreservesCase(t *testing.T) {
	if got := TrimDot("HP_LaserJet._printer._tcp.local."); got != "HP_LaserJet._printer._tcp.local" {
		t.Errorf("unexpected %q", got)
	}
}
