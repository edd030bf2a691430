package client

import (
	"testing"

	"github.com/colitas-felices/clinic/internal/shared/types"
)

func validName() types.PersonName {
	return types.PersonName{
		FirstName:    "Maria",
		PaternalName: "Quispe",
		MaternalName: "Huaman",
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		dni     string
		email   string
		phone   string
		wantErr bool
	}{
		{"valid", "45678912", "maria@example.com", "987654321", false},
		{"short dni", "4567891", "maria@example.com", "987654321", true},
		{"dni with letters", "4567891a", "maria@example.com", "987654321", true},
		{"bad email", "45678912", "maria@", "987654321", true},
		{"phone not starting with 9", "45678912", "maria@example.com", "887654321", true},
		{"short phone", "45678912", "maria@example.com", "98765432", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(validName(), tt.dni, tt.email, tt.phone, "Av. Siempre Viva 123")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.ID.IsZero() {
				t.Error("expected generated ID")
			}
			if c.Email != tt.email {
				t.Errorf("email = %q, want %q", c.Email, tt.email)
			}
		})
	}
}

func TestNewNormalizesEmail(t *testing.T) {
	c, err := New(validName(), "45678912", "  Maria@Example.COM ", "987654321", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Email != "maria@example.com" {
		t.Errorf("email = %q, want lowercase trimmed", c.Email)
	}
}

func TestUpdateRejectsInvalidData(t *testing.T) {
	c, err := New(validName(), "45678912", "maria@example.com", "987654321", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Update(validName(), "maria@example.com", "12345", ""); err == nil {
		t.Error("expected error for invalid phone")
	}
	if err := c.Update(types.PersonName{FirstName: "M"}, "maria@example.com", "987654321", ""); err == nil {
		t.Error("expected error for invalid name")
	}
	// Failed updates must not mutate the client.
	if c.Phone.String() != "987654321" {
		t.Errorf("phone changed after failed update: %q", c.Phone)
	}
}
