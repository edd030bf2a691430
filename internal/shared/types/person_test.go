package types

import "testing"

func TestParseDNI(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"12345678", false},
		{"00000001", false},
		{"1234567", true},
		{"123456789", true},
		{"1234567a", true},
		{"", true},
	}

	for _, tt := range tests {
		_, err := ParseDNI(tt.input)
		if tt.wantErr && err == nil {
			t.Errorf("ParseDNI(%q): expected error, got none", tt.input)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("ParseDNI(%q): unexpected error: %v", tt.input, err)
		}
	}
}

func TestDNIMasked(t *testing.T) {
	d := DNI("12345678")
	if got := d.Masked(); got != "*****678" {
		t.Errorf("expected *****678, got %s", got)
	}

	if got := DNI("123").Masked(); got != "********" {
		t.Errorf("short DNI should be fully masked, got %s", got)
	}
}

func TestParsePhone(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"987654321", false},
		{"912345678", false},
		{"887654321", true}, // must start with 9
		{"98765432", true},
		{"9876543210", true},
		{"", true},
	}

	for _, tt := range tests {
		_, err := ParsePhone(tt.input)
		if tt.wantErr && err == nil {
			t.Errorf("ParsePhone(%q): expected error, got none", tt.input)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("ParsePhone(%q): unexpected error: %v", tt.input, err)
		}
	}
}

func TestValidEmail(t *testing.T) {
	if !ValidEmail("ana@clinic.pe") {
		t.Error("expected valid email")
	}
	if ValidEmail("not-an-email") {
		t.Error("expected invalid email")
	}
	if ValidEmail("a@b") {
		t.Error("missing TLD should be invalid")
	}
}

func TestPersonName(t *testing.T) {
	n := PersonName{FirstName: "Ana", PaternalName: "Gomez", MaternalName: "Rios"}
	if got := n.Full(); got != "Ana Gomez Rios" {
		t.Errorf("expected full name, got %q", got)
	}
	if details := n.Validate(); details != nil {
		t.Errorf("expected valid name, got %v", details)
	}

	bad := PersonName{FirstName: "A", PaternalName: "", MaternalName: "Rios"}
	details := bad.Validate()
	if len(details) != 2 {
		t.Errorf("expected 2 validation errors, got %v", details)
	}
}
