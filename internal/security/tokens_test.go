package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidateConsole(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	token, exp, err := p.IssueConsole("u1", "lab-user-ab12cd34@labs.example.com", "conn-9")
	if err != nil {
		t.Fatalf("IssueConsole: %v", err)
	}
	if token == "" {
		t.Fatal("console token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	uid, principal, conn, err := p.ValidateConsole(token)
	if err != nil {
		t.Fatalf("ValidateConsole: %v", err)
	}
	if uid != "u1" || principal != "lab-user-ab12cd34@labs.example.com" || conn != "conn-9" {
		t.Errorf("ValidateConsole: got userID=%q principal=%q connectionID=%q", uid, principal, conn)
	}
}

func TestTokenProvider_ValidateAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, err := TestSignedAccessToken(p, "u1", "o1")
	if err != nil {
		t.Fatalf("TestSignedAccessToken: %v", err)
	}
	uid, oid, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if uid != "u1" || oid != "o1" {
		t.Errorf("ValidateAccess: got userID=%q orgID=%q", uid, oid)
	}
}

func TestTokenProvider_ValidateAccessInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateAccess invalid token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ValidateConsoleInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, _, _, err := p.ValidateConsole("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateConsole invalid token: want ErrInvalidToken, got %v", err)
	}
}
