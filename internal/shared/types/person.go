package types

import (
	"fmt"
	"regexp"
	"strings"
)

// DNI represents a Peruvian national identity document number (8 digits).
type DNI string

var dniRegex = regexp.MustCompile(`^\d{8}$`)

// ParseDNI validates and parses a DNI string.
func ParseDNI(s string) (DNI, error) {
	if !dniRegex.MatchString(s) {
		return "", fmt.Errorf("DNI must be exactly 8 digits")
	}
	return DNI(s), nil
}

// String returns the string representation.
func (d DNI) String() string {
	return string(d)
}

// Masked returns a masked version for display (last 3 digits visible).
func (d DNI) Masked() string {
	if len(d) != 8 {
		return "********"
	}
	return "*****" + string(d)[5:]
}

// IsZero checks if the DNI is empty.
func (d DNI) IsZero() bool {
	return d == ""
}

// Phone represents a Peruvian mobile phone number (9 digits, starts with 9).
type Phone string

var phoneRegex = regexp.MustCompile(`^9\d{8}$`)

// ParsePhone validates and parses a phone string.
func ParsePhone(s string) (Phone, error) {
	if !phoneRegex.MatchString(s) {
		return "", fmt.Errorf("phone must be 9 digits starting with 9")
	}
	return Phone(s), nil
}

// String returns the string representation.
func (p Phone) String() string {
	return string(p)
}

// IsZero checks if the phone is empty.
func (p Phone) IsZero() bool {
	return p == ""
}

var emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// Gender is a single-letter gender code.
type Gender string

const (
	GenderFemale Gender = "F"
	GenderMale   Gender = "M"
)

// ParseGender validates a gender code.
func ParseGender(s string) (Gender, error) {
	switch Gender(s) {
	case GenderFemale, GenderMale:
		return Gender(s), nil
	}
	return "", fmt.Errorf("gender must be F or M")
}

// Description returns the Spanish display label.
func (g Gender) Description() string {
	if g == GenderFemale {
		return "Femenino"
	}
	return "Masculino"
}

// PersonName groups the name fields shared by clients and staff profiles.
type PersonName struct {
	FirstName      string `json:"nombre"`
	PaternalName   string `json:"apellido_paterno"`
	MaternalName   string `json:"apellido_materno"`
}

// Full returns "nombre apellido_paterno apellido_materno".
func (n PersonName) Full() string {
	return strings.TrimSpace(n.FirstName + " " + n.PaternalName + " " + n.MaternalName)
}

// Validate checks the minimum-length rules applied to every person name.
func (n PersonName) Validate() map[string]string {
	details := make(map[string]string)
	if len(strings.TrimSpace(n.FirstName)) < 2 {
		details["nombre"] = "must be at least 2 characters"
	}
	if len(strings.TrimSpace(n.PaternalName)) < 2 {
		details["apellido_paterno"] = "must be at least 2 characters"
	}
	if len(strings.TrimSpace(n.MaternalName)) < 2 {
		details["apellido_materno"] = "must be at least 2 characters"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
