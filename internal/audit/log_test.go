package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"rcsa.id/internal/auth"
	"rcsa.id/internal/obs"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithClaims(ctx, auth.Claims{SubjectID: 42, UserID: "u42", Role: "Administrator", RoleID: 1})

	if err := LogEvent(ctx, "rcsa.approve", map[string]any{"assessment_id": 7}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["type"] != "audit" || entry["event"] != "rcsa.approve" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "u42" || entry["subject_id"] != float64(42) {
		t.Fatalf("unexpected identity: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["assessment_id"] != float64(7) {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestLogEventWithoutIdentity(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	if err := LogEvent(context.Background(), "auth.login_failed", nil); err != nil {
		t.Fatal(err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if _, ok := entry["user_id"]; ok {
		t.Fatal("anonymous events must not carry a user id")
	}
	if fields, ok := entry["fields"].(map[string]any); !ok || len(fields) != 0 {
		t.Fatalf("expected empty fields object, got %v", entry["fields"])
	}
}
