package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
)

func TestOperationsAppendAuditEntries(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")

	msg, err := s.SendMessage(ctx, "alice", "bob", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	task, err := s.CreateTask(ctx, "review pr", "alice", "", "", "")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := s.ClaimTask(ctx, task.ID, "bob"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	entries, err := s.GetAuditLog(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	// register x2, send_message, create_task, claim_task; newest first.
	if len(entries) != 5 {
		t.Fatalf("expected 5 audit entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Action != "claim_task" || entries[0].AgentName != "bob" {
		t.Fatalf("newest entry = %+v", entries[0])
	}

	sends, err := s.GetAuditLog(ctx, AuditFilter{Action: "send_message"})
	if err != nil {
		t.Fatalf("audit by action: %v", err)
	}
	if len(sends) != 1 || sends[0].TargetID != fmt.Sprint(msg.ID) {
		t.Fatalf("send entry = %+v", sends)
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(sends[0].Details), &details); err != nil {
		t.Fatalf("details must be JSON: %v", err)
	}
	if details["recipient"] != "bob" {
		t.Fatalf("send details = %v", details)
	}
}

func TestLogActionCustomEntry(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.LogAction(ctx, "alice", "deploy", "service", "api", map[string]any{"version": "2.1.0"})
	if err != nil {
		t.Fatalf("log action: %v", err)
	}

	entries, err := s.GetAuditLog(ctx, AuditFilter{AgentName: "alice", Action: "deploy"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.TargetType != "service" || entry.TargetID != "api" {
		t.Fatalf("entry = %+v", entry)
	}

	// Entries with no details serialize as an empty object.
	if err := s.LogAction(ctx, "alice", "noop", "", "", nil); err != nil {
		t.Fatalf("log action nil details: %v", err)
	}
	entries, err = s.GetAuditLog(ctx, AuditFilter{Action: "noop"})
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit noop: %v %+v", err, entries)
	}
	if entries[0].Details != "{}" {
		t.Fatalf("empty details = %q, want {}", entries[0].Details)
	}
}

func TestGetAuditLogFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		agent := "alice"
		if i%2 == 1 {
			agent = "bob"
		}
		if err := s.LogAction(ctx, agent, "tick", "", "", nil); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}

	entries, err := s.GetAuditLog(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 50 {
		t.Fatalf("default limit = %d, want 50", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID > entries[i-1].ID {
			t.Fatalf("entries must be newest first at %d: %+v", i, entries[i-1:i+1])
		}
	}

	entries, err = s.GetAuditLog(ctx, AuditFilter{Limit: 1000})
	if err != nil {
		t.Fatalf("audit capped: %v", err)
	}
	if len(entries) != 60 {
		t.Fatalf("capped query returned %d, want all 60", len(entries))
	}

	entries, err = s.GetAuditLog(ctx, AuditFilter{AgentName: "bob", Limit: 100})
	if err != nil {
		t.Fatalf("audit by agent: %v", err)
	}
	if len(entries) != 30 {
		t.Fatalf("bob entries = %d, want 30", len(entries))
	}

	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	entries, err = s.GetAuditLog(ctx, AuditFilter{Since: future})
	if err != nil {
		t.Fatalf("audit since future: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("future cutoff must match nothing, got %d", len(entries))
	}

	past := "2020-01-01"
	entries, err = s.GetAuditLog(ctx, AuditFilter{Since: past, Limit: 200})
	if err != nil {
		t.Fatalf("audit since past: %v", err)
	}
	if len(entries) != 60 {
		t.Fatalf("past cutoff must match all, got %d", len(entries))
	}

	if _, err := s.GetAuditLog(ctx, AuditFilter{Since: "yesterday"}); !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("bad since: got %v, want INVALID_INPUT", err)
	}
}
