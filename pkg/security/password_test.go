package security

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "normal password", password: "correct-horse-battery-staple"},
		{name: "empty password", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := HashPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HashPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			ok, err := VerifyPassword(tt.password, encoded)
			if err != nil {
				t.Fatalf("VerifyPassword() unexpected error: %v", err)
			}
			if !ok {
				t.Error("VerifyPassword() = false, want true for matching password")
			}
		})
	}
}

func TestVerifyPasswordWrongPassword(t *testing.T) {
	encoded, err := HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword() unexpected error: %v", err)
	}

	ok, err := VerifyPassword("wrong-password", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword() unexpected error: %v", err)
	}
	if ok {
		t.Error("VerifyPassword() = true, want false for mismatched password")
	}
}

func TestHashPasswordUniqueSalt(t *testing.T) {
	a, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() unexpected error: %v", err)
	}
	b, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() unexpected error: %v", err)
	}
	if a == b {
		t.Error("HashPassword() produced identical output for two calls; salt is not random")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	if _, err := VerifyPassword("anything", "not-a-valid-hash"); err == nil {
		t.Error("VerifyPassword() expected error for malformed hash")
	}
}
