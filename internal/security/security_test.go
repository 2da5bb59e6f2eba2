package security

import (
	"errors"
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, errHash := HashPassword("secret")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hash == "secret" {
		t.Fatalf("expected hashed password")
	}
	if !CheckPassword(hash, "secret") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "other") {
		t.Fatalf("expected wrong password to fail")
	}
	if _, errEmpty := HashPassword(""); errEmpty == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestUserTokenRoundTrip(t *testing.T) {
	token, errIssue := IssueUserToken("k", 7, "alice", time.Hour)
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	claims, errParse := ParseUserToken("k", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.UserID != 7 || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseUserTokenRejects(t *testing.T) {
	token, errIssue := IssueUserToken("k", 7, "alice", time.Hour)
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	if _, errParse := ParseUserToken("other", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", errParse)
	}

	expired, errExpired := IssueUserToken("k", 7, "alice", -time.Minute)
	if errExpired != nil {
		t.Fatalf("issue expired: %v", errExpired)
	}
	if _, errParse := ParseUserToken("k", expired); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", errParse)
	}

	if _, errParse := ParseUserToken("", token); !errors.Is(errParse, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", errParse)
	}
}

func TestGenerateRandomString(t *testing.T) {
	a, errA := GenerateRandomString(16)
	if errA != nil {
		t.Fatalf("generate: %v", errA)
	}
	b, errB := GenerateRandomString(16)
	if errB != nil {
		t.Fatalf("generate: %v", errB)
	}
	if len(a) != 32 || a == b {
		t.Fatalf("unexpected random strings %q %q", a, b)
	}
}
