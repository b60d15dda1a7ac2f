package session

import (
	"errors"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-session", false},
		{"valid with underscore", "my_session", false},
		{"valid single char", "a", false},
		{"valid max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my session", true},
		{"dot", "my.session", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"slash", "my/session", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOwnerID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"short id", "U1", false},
		{"phone number", "5585999990000", false},
		{"uuid", "0b1c6a4e-2f6e-4f0e-9a51-0d1f0e6e9b11", false},
		{"slash", "a/b", true},
		{"space", "a b", true},
		{"query", "a?b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOwnerID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOwnerID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}

	if err := ValidateOwnerID(""); !errors.Is(err, ErrEmptyOwner) {
		t.Errorf("ValidateOwnerID(\"\") = %v, want ErrEmptyOwner", err)
	}
}
