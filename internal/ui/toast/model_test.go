package toast

import (
	"strings"
	"testing"
	"time"

	"github.com/nhle/mailterm/internal/outbox"
)

func TestPendingToastShowsCountdown(t *testing.T) {
	m := New(80)
	m.SetPending([]outbox.View{
		{ID: "q1", Label: "Email to bob@example.com", Status: outbox.StatusPending, RemainingMs: 6200},
	})

	out := m.View()
	if !strings.Contains(out, "Email to bob@example.com") {
		t.Fatalf("toast missing label: %q", out)
	}
	if !strings.Contains(out, "7s") {
		t.Fatalf("countdown should round up to 7s: %q", out)
	}
}

func TestTerminalEntriesAreDropped(t *testing.T) {
	m := New(80)
	m.SetPending([]outbox.View{
		{ID: "q1", Label: "Marked done", Status: outbox.StatusCommitted},
		{ID: "q2", Label: "Email to bob", Status: outbox.StatusPending, RemainingMs: 3000},
	})

	out := m.View()
	if strings.Contains(out, "Marked done") {
		t.Fatalf("committed entry still rendered: %q", out)
	}
	if !strings.Contains(out, "Email to bob") {
		t.Fatalf("live entry missing: %q", out)
	}
}

func TestPausedToastWording(t *testing.T) {
	m := New(80)
	m.SetPending([]outbox.View{
		{ID: "q1", Label: "Email to bob", Status: outbox.StatusPaused, RemainingMs: 5000},
	})

	if out := m.View(); !strings.Contains(out, "paused at 5s") {
		t.Fatalf("paused wording missing: %q", out)
	}
}

func TestNoticesExpire(t *testing.T) {
	now := time.Now()
	m := New(80)
	m.now = func() time.Time { return now }

	m.Notify("Email cancelled")
	if !strings.Contains(m.View(), "Email cancelled") {
		t.Fatalf("notice not rendered")
	}

	now = now.Add(noticeDuration + time.Second)
	m, _ = m.Update(nil)
	if !m.Empty() {
		t.Fatalf("expired notice survived update")
	}
}

func TestErrorNoticeRendered(t *testing.T) {
	m := New(80)
	m.NotifyError("Couldn't cancel — may have already been sent")

	if !strings.Contains(m.View(), "already been sent") {
		t.Fatalf("error notice missing")
	}
}
