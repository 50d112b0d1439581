package imagetoken

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmalloway/checksub001/pkg/model"
)

// memStore is a minimal in-memory Store that faithfully models the
// atomic-conditional-UPDATE contract Consume requires.
type memStore struct {
	mu     sync.Mutex
	tokens map[string]*model.ImageAccessToken
}

func newMemStore() *memStore {
	return &memStore{tokens: map[string]*model.ImageAccessToken{}}
}

func (m *memStore) Insert(ctx context.Context, tok *model.ImageAccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tokens[tok.ID] = &cp
	return nil
}

func (m *memStore) Consume(ctx context.Context, tokenID, ip, ua string, now time.Time) (*model.ImageAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[tokenID]
	if !ok || tok.UsedAt != nil || now.After(tok.ExpiresAt) {
		return nil, nil
	}
	snapshot := *tok
	tok.UsedAt = &now
	tok.UsedByIP = ip
	tok.UsedByUserAgent = ua
	return &snapshot, nil
}

func (m *memStore) Get(ctx context.Context, tokenID string) (*model.ImageAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	cp := *tok
	return &cp, nil
}

func TestConsume_SucceedsOnce(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 90*time.Second)

	tok, err := svc.Mint(context.Background(), "t1", "image-1", "user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := svc.Consume(context.Background(), tok.ID, "1.2.3.4", "ua"); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := svc.Consume(context.Background(), tok.ID, "1.2.3.4", "ua"); err != ErrGone {
		t.Fatalf("expected ErrGone on reuse, got %v", err)
	}
}

func TestConsume_UnknownTokenIsNotFound(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 90*time.Second)

	if _, err := svc.Consume(context.Background(), "nonexistent", "1.2.3.4", "ua"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsume_ExpiredTokenIsGone(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 90*time.Second)
	svc.now = func() time.Time { return time.Unix(1000, 0) }

	tok, err := svc.Mint(context.Background(), "t1", "image-1", "user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	svc.now = func() time.Time { return time.Unix(1000, 0).Add(2 * time.Hour) }
	if _, err := svc.Consume(context.Background(), tok.ID, "1.2.3.4", "ua"); err != ErrGone {
		t.Fatalf("expected ErrGone for expired token, got %v", err)
	}
}

func TestConsume_ConcurrentRequestsOnlyOneWins(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, 90*time.Second)
	tok, err := svc.Mint(context.Background(), "t1", "image-1", "user-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	successes := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(context.Background(), tok.ID, "1.2.3.4", "ua")
			successes <- err == nil
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for ok := range successes {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 successful consume, got %d", count)
	}
}
