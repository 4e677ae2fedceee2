package location

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uberatomic "go.uber.org/atomic"
)

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) record(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestFragmentConversion(t *testing.T) {
	tests := []struct {
		fragment string
		key      string
	}{
		{fragment: "#/learn", key: "/learn"},
		{fragment: "#/", key: "/"},
		{fragment: "", key: ""},
		{fragment: " #/quiz ", key: "/quiz"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.key, FromFragment(tc.fragment), "fragment %q", tc.fragment)
	}

	assert.Equal(t, "#/learn", ToFragment("/learn"))
	assert.Equal(t, "", ToFragment(""))
}

func TestMemorySynchronousDelivery(t *testing.T) {
	loc := NewMemory("")
	rec := &recorder{}
	loc.Subscribe(rec.record)

	loc.Assign("/")
	assert.Equal(t, []string{"/"}, rec.seen(), "synchronous delivery must happen inside Assign")

	loc.Assign("/")
	assert.Equal(t, []string{"/"}, rec.seen(), "assigning the current value must not notify")

	loc.Assign("/learn")
	assert.Equal(t, "/learn", loc.Current())
	assert.Equal(t, []string{"/", "/learn"}, rec.seen())
}

func TestMemoryQueuedDeliveryKeepsOrder(t *testing.T) {
	loc := NewMemory("/", WithQueuedDelivery())
	rec := &recorder{}
	loc.Subscribe(rec.record)

	loc.Assign("/a")
	loc.Assign("/b")
	loc.Assign("/c")
	assert.Equal(t, "/c", loc.Current())

	loc.Flush()
	assert.Equal(t, []string{"/a", "/b", "/c"}, rec.seen())
}

func TestMemoryUnsubscribe(t *testing.T) {
	loc := NewMemory("/")
	rec := &recorder{}
	unsubscribe := loc.Subscribe(rec.record)

	loc.Assign("/a")
	unsubscribe()
	loc.Assign("/b")

	assert.Equal(t, []string{"/a"}, rec.seen())
}

func TestMemoryOnAssignSkipsObservedChanges(t *testing.T) {
	var assigned []string
	loc := NewMemory("/", WithOnAssign(func(key string) {
		assigned = append(assigned, key)
	}))
	rec := &recorder{}
	loc.Subscribe(rec.record)

	loc.Assign("/learn")
	loc.Observe("/quiz")

	assert.Equal(t, []string{"/learn"}, assigned)
	assert.Equal(t, []string{"/learn", "/quiz"}, rec.seen())
}

func TestMemoryClosedIgnoresChanges(t *testing.T) {
	loc := NewMemory("/", WithQueuedDelivery())
	rec := &recorder{}
	loc.Subscribe(rec.record)

	loc.Close()
	loc.Assign("/a")
	loc.Flush()

	require.Equal(t, "/", loc.Current())
	assert.Empty(t, rec.seen())
}

func TestMemoryConcurrentAssignsDeliverInWriteOrder(t *testing.T) {
	modes := []struct {
		name string
		opts []Option
	}{
		{name: "synchronous"},
		{name: "queued", opts: []Option{WithQueuedDelivery()}},
	}

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			for run := 0; run < 50; run++ {
				slowed := uberatomic.NewBool(false)
				var pushed recorder
				opts := append([]Option{WithOnAssign(func(key string) {
					if slowed.CompareAndSwap(false, true) {
						time.Sleep(time.Millisecond)
					}
					pushed.record(key)
				})}, mode.opts...)

				loc := NewMemory("/", opts...)
				rec := &recorder{}
				loc.Subscribe(rec.record)

				var wg sync.WaitGroup
				for _, key := range []string{"/a", "/b"} {
					wg.Add(1)
					go func(key string) {
						defer wg.Done()
						loc.Assign(key)
					}(key)
				}
				wg.Wait()
				loc.Flush()

				seen := rec.seen()
				require.NotEmpty(t, seen)
				assert.Equal(t, loc.Current(), seen[len(seen)-1], "last delivered key must be the current location")
				assert.Equal(t, seen, pushed.seen(), "assign hook must run in delivery order")
			}
		})
	}
}
