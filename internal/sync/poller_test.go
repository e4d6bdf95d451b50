package sync

import (
	"context"
	"testing"
	"time"

	"github.com/zeegates/minig/internal/model"
	"github.com/zeegates/minig/internal/service"
	"github.com/zeegates/minig/internal/store"
	"github.com/zeegates/minig/tests/testutil"
)

// listOnlyStore serves a fixed folder listing; everything else is
// unreachable from the poller.
type listOnlyStore struct {
	store.Store
	raws []*store.RawMessage
}

func (s *listOnlyStore) ListFolder(context.Context, string, int, int) ([]*store.RawMessage, int, error) {
	return s.raws, len(s.raws), nil
}

func TestPollerRefreshesFolder(t *testing.T) {
	t.Parallel()

	raw := testutil.NewMessage("<p@example.com>").
		From("alice@example.com").
		Subject("poll me").
		PlainBody("x").
		Raw("INBOX", "<p@example.com>")

	st := &listOnlyStore{raws: []*store.RawMessage{raw}}
	svc := service.New(st, testutil.NewTestCache(t), nil, model.FolderConfig{
		Trash: "Trash", Draft: "Drafts", Sent: "Sent",
	}, "me@example.com")

	p := New(svc)
	p.WatchFolder("INBOX", time.Hour)
	p.Start()
	defer p.Stop()

	select {
	case result := <-p.Results():
		if result.Error != nil {
			t.Fatalf("refresh result: %v", result.Error)
		}
		if result.Folder != "INBOX" || result.MessageCount != 1 {
			t.Errorf("result: got %+v", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh result before timeout")
	}

	// The initial refresh must have cached the summary.
	cached, err := svc.SearchCached(context.Background(), "poll me", 10)
	if err != nil {
		t.Fatalf("SearchCached: %v", err)
	}
	if len(cached) != 1 {
		t.Errorf("cached rows: got %d, want 1", len(cached))
	}
}

func TestRefreshFolderReachesItsFolder(t *testing.T) {
	t.Parallel()

	st := &listOnlyStore{}
	svc := service.New(st, testutil.NewTestCache(t), nil, model.FolderConfig{
		Trash: "Trash", Draft: "Drafts", Sent: "Sent",
	}, "me@example.com")

	p := New(svc)
	p.WatchFolder("INBOX", time.Hour)
	p.WatchFolder("Archive", time.Hour)
	p.Start()
	defer p.Stop()

	// Drain the two initial refreshes, one per watched folder.
	for i := 0; i < 2; i++ {
		select {
		case <-p.Results():
		case <-time.After(5 * time.Second):
			t.Fatal("initial refresh missing")
		}
	}

	// A manual trigger must refresh the named folder, whichever
	// goroutine is scheduled first.
	p.RefreshFolder("Archive")

	select {
	case result := <-p.Results():
		if result.Folder != "Archive" {
			t.Errorf("triggered refresh: got folder %q, want Archive", result.Folder)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("triggered refresh never ran")
	}

	// Triggering a folder nobody watches is a no-op.
	p.RefreshFolder("Junk")
}

func TestPollerStatuses(t *testing.T) {
	t.Parallel()

	st := &listOnlyStore{}
	svc := service.New(st, nil, nil, model.FolderConfig{Trash: "Trash"}, "me@example.com")

	p := New(svc)
	p.WatchFolder("INBOX", 0)
	p.WatchFolder("Archive", time.Minute)

	statuses := p.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("statuses: got %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if s.State != RefreshIdle {
			t.Errorf("folder %s: got state %v, want idle", s.Folder, s.State)
		}
	}
}
