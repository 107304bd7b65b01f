package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
	"github.com/Brickmii/team-table/pkg/ratelimit"
)

func TestSendMessageValidation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")

	if _, err := s.SendMessage(ctx, "alice", "bob", ""); !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("empty content: got %v, want INVALID_INPUT", err)
	}
	long := strings.Repeat("x", 10001)
	if _, err := s.SendMessage(ctx, "alice", "bob", long); !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("oversized content: got %v, want INVALID_INPUT", err)
	}
	if _, err := s.SendMessage(ctx, "alice", "*", "hi"); !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("wildcard via send_message: got %v, want INVALID_INPUT", err)
	}
}

func TestGetMessagesMarksDirectRead(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")

	if _, err := s.SendMessage(ctx, "alice", "bob", "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := s.SendMessage(ctx, "alice", "bob", "second"); err != nil {
		t.Fatalf("send: %v", err)
	}

	unread, err := s.GetMessages(ctx, "bob", false, false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(unread) != 2 || unread[0].Content != "first" || unread[1].Content != "second" {
		t.Fatalf("expected oldest-first unread pair, got %+v", unread)
	}

	again, err := s.GetMessages(ctx, "bob", false, false)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("first read must consume unread state, got %d", len(again))
	}

	all, err := s.GetMessages(ctx, "bob", true, false)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 || !all[0].Read || !all[1].Read {
		t.Fatalf("include_read must return marked messages: %+v", all)
	}
}

func TestBroadcastReadIsPerAgent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")
	mustRegister(t, s, "carol", "")

	if _, err := s.Broadcast(ctx, "alice", "standup in 5"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	got, err := s.GetMessages(ctx, "bob", false, false)
	if err != nil || len(got) != 1 {
		t.Fatalf("bob first read: %v %+v", err, got)
	}
	got, err = s.GetMessages(ctx, "bob", false, false)
	if err != nil || len(got) != 0 {
		t.Fatalf("bob second read must be empty: %v %+v", err, got)
	}

	// Bob's read must not consume carol's copy.
	got, err = s.GetMessages(ctx, "carol", false, false)
	if err != nil || len(got) != 1 {
		t.Fatalf("carol must still see the broadcast: %v %+v", err, got)
	}

	count, err := s.UnreadCount(ctx, "carol")
	if err != nil || count != 0 {
		t.Fatalf("carol unread after read = %d, err %v", count, err)
	}
}

func TestUnreadCountAndPreviewHaveNoSideEffects(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")

	if _, err := s.SendMessage(ctx, "alice", "bob", strings.Repeat("z", 500)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := s.SendMessage(ctx, "alice", "bob", "short"); err != nil {
		t.Fatalf("send: %v", err)
	}

	for i := 0; i < 3; i++ {
		count, err := s.UnreadCount(ctx, "bob")
		if err != nil || count != 2 {
			t.Fatalf("unread count stayed %d, err %v", count, err)
		}
	}

	previews, err := s.UnreadPreview(ctx, "bob", 1)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(previews) != 1 || previews[0].Content != "short" {
		t.Fatalf("preview must be newest first: %+v", previews)
	}

	previews, err = s.UnreadPreview(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("preview default limit: %v", err)
	}
	if len(previews) != 2 {
		t.Fatalf("default limit preview count = %d", len(previews))
	}
	if len(previews[1].Content) != 100 {
		t.Fatalf("preview content must truncate to 100, got %d", len(previews[1].Content))
	}

	count, err := s.UnreadCount(ctx, "bob")
	if err != nil || count != 2 {
		t.Fatalf("previews must not mark read: count=%d err=%v", count, err)
	}
}

func TestDeleteMessageAuthorization(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")
	mustRegister(t, s, "mallory", "")
	mustRegister(t, s, "boss", "admin")

	msg, err := s.SendMessage(ctx, "alice", "bob", "private")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := s.DeleteMessage(ctx, msg.ID, "mallory"); !errors.Is(err, errors.CodeUnauthorized) {
		t.Fatalf("third party delete: got %v, want UNAUTHORIZED", err)
	}

	deleted, err := s.DeleteMessage(ctx, msg.ID, "bob")
	if err != nil {
		t.Fatalf("recipient delete: %v", err)
	}
	if deleted.ArchivedAt == nil {
		t.Fatalf("delete must set archived_at")
	}
	if deleted.Read {
		t.Fatalf("delete must not mark read")
	}

	// Soft-deleted rows disappear from the default view but survive with
	// include_archived.
	got, err := s.GetMessages(ctx, "bob", true, false)
	if err != nil || len(got) != 0 {
		t.Fatalf("archived message leaked into default view: %v %+v", err, got)
	}
	got, err = s.GetMessages(ctx, "bob", true, true)
	if err != nil || len(got) != 1 {
		t.Fatalf("include_archived must surface it: %v %+v", err, got)
	}

	// Privileged roles may delete messages they are not party to.
	other, err := s.SendMessage(ctx, "alice", "bob", "second")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := s.DeleteMessage(ctx, other.ID, "boss"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}

	absent, err := s.DeleteMessage(ctx, 9999, "boss")
	if err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if absent != nil {
		t.Fatalf("absent message must yield nil result, got %+v", absent)
	}
}

func TestArchiveMessageMarksRead(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")

	direct, err := s.SendMessage(ctx, "alice", "bob", "to archive")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	archived, err := s.ArchiveMessage(ctx, direct.ID, "bob")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived.Read || archived.ArchivedAt == nil {
		t.Fatalf("archive must set read and archived_at: %+v", archived)
	}

	// Archiving a wildcard message also records the per-agent read so the
	// acting agent's unread count drops.
	if _, err := s.Broadcast(ctx, "alice", "fyi"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	previews, err := s.UnreadPreview(ctx, "bob", 3)
	if err != nil || len(previews) != 1 {
		t.Fatalf("expected one unread broadcast: %v %+v", err, previews)
	}
	got, err := s.GetMessages(ctx, "bob", true, false)
	if err != nil || len(got) != 1 {
		t.Fatalf("locate broadcast: %v %+v", err, got)
	}
	if _, err := s.ArchiveMessage(ctx, got[0].ID, "bob"); err != nil {
		t.Fatalf("archive broadcast: %v", err)
	}
	count, err := s.UnreadCount(ctx, "bob")
	if err != nil || count != 0 {
		t.Fatalf("unread after broadcast archive = %d, err %v", count, err)
	}
}

func TestBroadcastArchiveIsPerAgentView(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")
	mustRegister(t, s, "carol", "")

	sent, err := s.Broadcast(ctx, "alice", "all hands")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	// Bob retires the broadcast from his own view only: the shared row
	// must stay live for everyone else.
	got, err := s.ArchiveMessage(ctx, sent.ID, "bob")
	if err != nil {
		t.Fatalf("archive by recipient: %v", err)
	}
	if !got.Read || got.ArchivedAt != nil {
		t.Fatalf("per-view archive must mark read without archiving the row: %+v", got)
	}

	if count, err := s.UnreadCount(ctx, "bob"); err != nil || count != 0 {
		t.Fatalf("bob unread = %d, err %v, want 0", count, err)
	}
	if count, err := s.UnreadCount(ctx, "carol"); err != nil || count != 1 {
		t.Fatalf("carol unread = %d, err %v, want 1", count, err)
	}
	inbox, err := s.GetMessages(ctx, "carol", false, false)
	if err != nil || len(inbox) != 1 {
		t.Fatalf("carol inbox after bob's archive: %v %+v", err, inbox)
	}

	// Deleting is the same: a non-sender only consumes their own view.
	second, err := s.Broadcast(ctx, "alice", "reminder")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if _, err := s.DeleteMessage(ctx, second.ID, "carol"); err != nil {
		t.Fatalf("delete by recipient: %v", err)
	}
	if count, err := s.UnreadCount(ctx, "bob"); err != nil || count != 1 {
		t.Fatalf("bob unread after carol's delete = %d, err %v, want 1", count, err)
	}

	// The sender archives the shared row for real.
	got, err = s.ArchiveMessage(ctx, second.ID, "alice")
	if err != nil {
		t.Fatalf("archive by sender: %v", err)
	}
	if got.ArchivedAt == nil {
		t.Fatalf("sender archive must set archived_at: %+v", got)
	}
	if count, err := s.UnreadCount(ctx, "bob"); err != nil || count != 0 {
		t.Fatalf("bob unread after sender archive = %d, err %v, want 0", count, err)
	}
}

func TestClearInbox(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")
	mustRegister(t, s, "carol", "")

	if _, err := s.SendMessage(ctx, "alice", "bob", "one"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := s.SendMessage(ctx, "carol", "bob", "two"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := s.Broadcast(ctx, "alice", "to everyone"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	count, err := s.ClearInbox(ctx, "bob", "", "alice")
	if err != nil {
		t.Fatalf("clear by sender: %v", err)
	}
	if count != 1 {
		t.Fatalf("sender-filtered clear archived %d, want 1", count)
	}

	count, err = s.ClearInbox(ctx, "bob", "", "")
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if count != 1 {
		t.Fatalf("second clear archived %d, want 1", count)
	}

	// Wildcard rows are shared and never archived by clear_inbox.
	got, err := s.GetMessages(ctx, "bob", false, false)
	if err != nil || len(got) != 1 || got[0].Recipient != BroadcastRecipient {
		t.Fatalf("broadcast must survive clear_inbox: %v %+v", err, got)
	}

	if _, err := s.ClearInbox(ctx, "bob", "not-a-date", ""); !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("bad before_date: got %v, want INVALID_INPUT", err)
	}
}

func TestPurgeMessagesRequiresPrivilege(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")
	mustRegister(t, s, "boss", "lead")

	if _, err := s.SendMessage(ctx, "alice", "bob", "old"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := s.Broadcast(ctx, "alice", "old broadcast"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	// Consume the broadcast so a broadcast_reads row exists for the purge
	// to clean up.
	if _, err := s.GetMessages(ctx, "bob", false, false); err != nil {
		t.Fatalf("read: %v", err)
	}

	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	if _, err := s.PurgeMessages(ctx, "alice", future); !errors.Is(err, errors.CodeUnauthorized) {
		t.Fatalf("unprivileged purge: got %v, want UNAUTHORIZED", err)
	}
	count, err := s.UnreadCount(ctx, "bob")
	if err != nil || count != 0 {
		t.Fatalf("refused purge must not mutate: count=%d err=%v", count, err)
	}

	purged, err := s.PurgeMessages(ctx, "boss", future)
	if err != nil {
		t.Fatalf("privileged purge: %v", err)
	}
	if purged != 2 {
		t.Fatalf("purged %d rows, want 2", purged)
	}

	var orphans int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM broadcast_reads").Scan(&orphans); err != nil {
		t.Fatalf("count broadcast_reads: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("purge left %d orphaned broadcast_reads rows", orphans)
	}

	got, err := s.GetMessages(ctx, "bob", true, true)
	if err != nil || len(got) != 0 {
		t.Fatalf("messages must be gone after purge: %v %+v", err, got)
	}
}

func TestSendMessageRateLimit(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	limiter := ratelimit.New(60*time.Second, 30)
	limiter.SetClock(func() time.Time { return clock })

	s := testStore(t, WithRateLimiter(limiter))
	ctx := context.Background()
	mustRegister(t, s, "alice", "")
	mustRegister(t, s, "bob", "")

	for i := 0; i < 30; i++ {
		if _, err := s.SendMessage(ctx, "alice", "bob", "burst"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if _, err := s.SendMessage(ctx, "alice", "bob", "over"); !errors.Is(err, errors.CodeRateLimit) {
		t.Fatalf("31st send: got %v, want RATE_LIMITED", err)
	}

	// The quota is per sender.
	if _, err := s.SendMessage(ctx, "bob", "alice", "unaffected"); err != nil {
		t.Fatalf("other sender must not be limited: %v", err)
	}

	// Refused sends must not persist.
	count, err := s.UnreadCount(ctx, "bob")
	if err != nil || count != 30 {
		t.Fatalf("bob unread = %d, err %v, want 30", count, err)
	}

	// Once the window slides past, sending resumes.
	clock = base.Add(61 * time.Second)
	if _, err := s.SendMessage(ctx, "alice", "bob", "after window"); err != nil {
		t.Fatalf("send after window: %v", err)
	}
}
