// Package sync keeps the local summary cache warm: a Poller refreshes
// watched folders from the mail store in the background so listing
// views and local search work off recent data.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/zeegates/minig/internal/service"
)

// RefreshState represents the current state of a folder refresh.
type RefreshState int

const (
	RefreshIdle RefreshState = iota
	RefreshRunning
	RefreshError
)

// RefreshStatus holds the refresh state for a single watched folder.
type RefreshStatus struct {
	Folder      string
	State       RefreshState
	LastRefresh time.Time
	Error       error
}

// RefreshResult reports the outcome of one folder refresh.
type RefreshResult struct {
	Folder       string
	MessageCount int
	Error        error
}

// fetchTimeout is the maximum time allowed for a single folder refresh.
const fetchTimeout = 30 * time.Second

// refreshPageSize is how many summaries one refresh pulls per folder.
const refreshPageSize = 50

// folderEntry holds a watched folder, its poll interval, and its own
// trigger channel so a manual refresh always reaches its goroutine.
type folderEntry struct {
	folder    string
	interval  time.Duration
	triggerCh chan struct{}
}

// Poller orchestrates background refreshing of watched folders.
type Poller struct {
	svc      *service.MailService
	folders  []folderEntry
	statuses map[string]*RefreshStatus
	resultCh chan RefreshResult
	stopCh   chan struct{}
	mu       gosync.Mutex
	running  bool
}

// New creates a Poller on top of the mail service.
func New(svc *service.MailService) *Poller {
	return &Poller{
		svc:      svc,
		statuses: make(map[string]*RefreshStatus),
		resultCh: make(chan RefreshResult, 16),
		stopCh:   make(chan struct{}),
	}
}

// WatchFolder registers a folder for periodic refreshing. A
// non-positive interval falls back to two minutes.
func (p *Poller) WatchFolder(folder string, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if interval <= 0 {
		interval = 2 * time.Minute
	}
	p.folders = append(p.folders, folderEntry{
		folder:    folder,
		interval:  interval,
		triggerCh: make(chan struct{}, 1),
	})
	p.statuses[folder] = &RefreshStatus{
		Folder: folder,
		State:  RefreshIdle,
	}
}

// Start launches a refresh goroutine per watched folder. Starting an
// already running poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	folders := make([]folderEntry, len(p.folders))
	copy(folders, p.folders)
	p.mu.Unlock()

	for _, entry := range folders {
		go p.pollFolder(entry)
	}
}

// Stop halts all refresh goroutines.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// RefreshAll triggers an immediate refresh of every watched folder.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	folders := make([]folderEntry, len(p.folders))
	copy(folders, p.folders)
	p.mu.Unlock()

	for _, entry := range folders {
		p.RefreshFolder(entry.folder)
	}
}

// RefreshFolder triggers an immediate refresh of a single folder. The
// trigger is dropped when one is already pending; triggering an
// unwatched folder is a no-op.
func (p *Poller) RefreshFolder(folder string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.folders {
		if entry.folder != folder {
			continue
		}
		select {
		case entry.triggerCh <- struct{}{}:
		default:
		}
		return
	}
}

// Results returns the channel refresh outcomes are published on.
// Results are dropped, not queued, when nobody drains the channel.
func (p *Poller) Results() <-chan RefreshResult {
	return p.resultCh
}

// Statuses returns the current refresh status of all watched folders.
func (p *Poller) Statuses() []RefreshStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]RefreshStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

// pollFolder runs the refresh loop for a single folder.
func (p *Poller) pollFolder(entry folderEntry) {
	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()

	// Initial refresh immediately on start.
	p.refresh(entry.folder)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.refresh(entry.folder)
		case <-entry.triggerCh:
			p.refresh(entry.folder)
		}
	}
}

// refresh pulls the first page of a folder through the service, which
// upserts the summaries into the cache as a side effect.
func (p *Poller) refresh(folder string) {
	p.setStatus(folder, RefreshRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	list, err := p.svc.FindMessagesByFolder(ctx, folder, 0, refreshPageSize)
	if err != nil {
		p.setStatus(folder, RefreshError, err)
		slog.Warn("folder refresh failed",
			"folder", folder,
			"error", err,
		)
		p.sendResult(RefreshResult{Folder: folder, Error: err})
		return
	}

	p.setStatus(folder, RefreshIdle, nil)
	p.sendResult(RefreshResult{
		Folder:       folder,
		MessageCount: list.FullLength,
	})
}

// setStatus updates the refresh status for a folder.
func (p *Poller) setStatus(folder string, state RefreshState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[folder]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == RefreshIdle && err == nil {
		status.LastRefresh = time.Now()
	}
}

// sendResult publishes a result without blocking the refresh loop.
func (p *Poller) sendResult(msg RefreshResult) {
	select {
	case p.resultCh <- msg:
	default:
	}
}
