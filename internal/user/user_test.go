package user

import (
	"testing"

	"github.com/colitas-felices/clinic/internal/shared/auth"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		role     string
		wantErr  bool
	}{
		{"valid vet", "jsalas", "secreto1", auth.RoleVeterinario, false},
		{"valid admin", "admin01", "secreto1", auth.RoleAdministrador, false},
		{"short username", "ab", "secreto1", auth.RoleVeterinario, true},
		{"short password", "jsalas", "12345", auth.RoleVeterinario, true},
		{"bad role", "jsalas", "secreto1", "Cliente", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := New(tt.username, tt.password, tt.role)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.Status != StatusActive {
				t.Errorf("status = %q, want %q", u.Status, StatusActive)
			}
			if u.PasswordHash == tt.password || u.PasswordHash == "" {
				t.Error("password stored without hashing")
			}
		})
	}
}

func TestNewNormalizesUsername(t *testing.T) {
	u, err := New("  JSalas ", "secreto1", auth.RoleVeterinario)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Username != "jsalas" {
		t.Errorf("username = %q, want %q", u.Username, "jsalas")
	}
}

func TestCheckPassword(t *testing.T) {
	u, err := New("jsalas", "secreto1", auth.RoleVeterinario)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.CheckPassword("secreto1") {
		t.Error("correct password rejected")
	}
	if u.CheckPassword("otra") {
		t.Error("wrong password accepted")
	}
}

func TestSetPassword(t *testing.T) {
	u, err := New("jsalas", "secreto1", auth.RoleVeterinario)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := u.SetPassword("12345"); err == nil {
		t.Error("expected error for short password")
	}
	if err := u.SetPassword("nuevosecreto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.CheckPassword("nuevosecreto") {
		t.Error("new password rejected")
	}
	if u.CheckPassword("secreto1") {
		t.Error("old password still accepted")
	}
}

func TestStatusTransitions(t *testing.T) {
	u, err := New("jsalas", "secreto1", auth.RoleVeterinario)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u.Deactivate()
	if u.Status != StatusInactive {
		t.Errorf("status = %q, want %q", u.Status, StatusInactive)
	}
	u.Activate()
	if u.Status != StatusActive {
		t.Errorf("status = %q, want %q", u.Status, StatusActive)
	}
}
