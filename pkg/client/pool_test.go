package client

import (
	"errors"
	"net/http"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

type fakeHandle struct {
	id       int
	closed   atomic.Bool
	closeErr error
}

func (h *fakeHandle) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("not used")
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return h.closeErr
}

type fakeFactory struct {
	mu      sync.Mutex
	handles []*fakeHandle
	hosts   []string
}

func (f *fakeFactory) open(host, port string) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{id: len(f.handles)}
	f.handles = append(f.handles, h)
	f.hosts = append(f.hosts, host+":"+port)
	return h, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}

func TestConnectionPool_ReusesIdleHandle(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewConnectionPool(2, factory.open, zerolog.Nop())
	u := mustParse(t, "https://api.sumologic.com/api/v1/search/jobs")

	var first, second Handle
	if err := pool.WithConnection(u, func(h Handle) error { first = h; return nil }); err != nil {
		t.Fatalf("WithConnection() error = %v", err)
	}
	if err := pool.WithConnection(u, func(h Handle) error { second = h; return nil }); err != nil {
		t.Fatalf("WithConnection() error = %v", err)
	}

	if first != second {
		t.Error("second call should reuse the idle handle")
	}
	if factory.count() != 1 {
		t.Errorf("handles opened = %d, want 1", factory.count())
	}
	if factory.hosts[0] != "api.sumologic.com:443" {
		t.Errorf("host = %q, want api.sumologic.com:443", factory.hosts[0])
	}
}

func TestConnectionPool_OverflowWhenFull(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewConnectionPool(1, factory.open, zerolog.Nop())
	u := mustParse(t, "http://localhost:8080/")

	var overflow *fakeHandle
	err := pool.WithConnection(u, func(outer Handle) error {
		return pool.WithConnection(u, func(inner Handle) error {
			if inner == outer {
				t.Error("inner call got the busy handle")
			}
			overflow = inner.(*fakeHandle)

			total, inUse := pool.Stats()
			if total != 1 || inUse != 1 {
				t.Errorf("Stats() = (%d, %d), want (1, 1)", total, inUse)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("WithConnection() error = %v", err)
	}

	if !overflow.closed.Load() {
		t.Error("temporary handle should be closed after use")
	}
	if total, inUse := pool.Stats(); total != 1 || inUse != 0 {
		t.Errorf("Stats() = (%d, %d), want (1, 0)", total, inUse)
	}
}

func TestConnectionPool_NeverExceedsMax(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewConnectionPool(3, factory.open, zerolog.Nop())
	u := mustParse(t, "https://api.sumologic.com/")

	var wg sync.WaitGroup
	release := make(chan struct{})
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.WithConnection(u, func(Handle) error {
				<-release
				return nil
			})
		}()
	}

	// Wait until all ten callers hold a handle.
	for factory.count() < 10 {
		runtime.Gosched()
	}
	if total, _ := pool.Stats(); total != 3 {
		t.Errorf("tracked handles = %d, want 3", total)
	}
	close(release)
	wg.Wait()

	if total, inUse := pool.Stats(); total != 3 || inUse != 0 {
		t.Errorf("Stats() = (%d, %d), want (3, 0)", total, inUse)
	}
}

func TestConnectionPool_EvictsOnError(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewConnectionPool(2, factory.open, zerolog.Nop())
	u := mustParse(t, "https://api.sumologic.com/")
	ioErr := errors.New("connection reset")

	err := pool.WithConnection(u, func(Handle) error { return ioErr })
	if !errors.Is(err, ioErr) {
		t.Fatalf("WithConnection() error = %v, want %v", err, ioErr)
	}

	if total, _ := pool.Stats(); total != 0 {
		t.Errorf("tracked handles = %d, want 0 after eviction", total)
	}
	if !factory.handles[0].closed.Load() {
		t.Error("evicted handle should be closed")
	}

	pool.WithConnection(u, func(Handle) error { return nil })
	if factory.count() != 2 {
		t.Errorf("handles opened = %d, want a fresh handle after eviction", factory.count())
	}
}

func TestConnectionPool_SeparatesHosts(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewConnectionPool(5, factory.open, zerolog.Nop())

	pool.WithConnection(mustParse(t, "https://a.example.com/"), func(Handle) error { return nil })
	pool.WithConnection(mustParse(t, "https://b.example.com/"), func(Handle) error { return nil })
	pool.WithConnection(mustParse(t, "https://a.example.com:8443/"), func(Handle) error { return nil })

	if factory.count() != 3 {
		t.Errorf("handles opened = %d, want 3", factory.count())
	}
}

func TestConnectionPool_CloseAllSwallowsErrors(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewConnectionPool(2, func(host, port string) (Handle, error) {
		h, _ := factory.open(host, port)
		h.(*fakeHandle).closeErr = errors.New("close failed")
		return h, nil
	}, zerolog.Nop())
	u := mustParse(t, "https://api.sumologic.com/")

	pool.WithConnection(u, func(Handle) error { return nil })
	if err := pool.CloseAll(); err != nil {
		t.Errorf("CloseAll() error = %v, want nil", err)
	}
	if total, _ := pool.Stats(); total != 0 {
		t.Errorf("tracked handles = %d, want 0", total)
	}
	if !factory.handles[0].closed.Load() {
		t.Error("handle should be closed")
	}
}

func TestConnectionPool_FactoryError(t *testing.T) {
	openErr := errors.New("dial failed")
	pool := NewConnectionPool(1, func(string, string) (Handle, error) { return nil, openErr }, zerolog.Nop())

	called := false
	err := pool.WithConnection(mustParse(t, "https://api.sumologic.com/"), func(Handle) error {
		called = true
		return nil
	})
	if !errors.Is(err, openErr) {
		t.Errorf("error = %v, want %v", err, openErr)
	}
	if called {
		t.Error("fn should not run without a handle")
	}
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		raw      string
		wantHost string
		wantPort string
	}{
		{"https://api.sumologic.com/api/v1", "api.sumologic.com", "443"},
		{"http://localhost/", "localhost", "80"},
		{"http://127.0.0.1:9000/", "127.0.0.1", "9000"},
	}
	for _, tt := range tests {
		host, port := hostPort(mustParse(t, tt.raw))
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("hostPort(%q) = (%q, %q), want (%q, %q)", tt.raw, host, port, tt.wantHost, tt.wantPort)
		}
	}
}
