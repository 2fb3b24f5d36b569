package translation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/doctranslate-worker/internal/config"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
)

type countingTranslator struct {
	calls      atomic.Int32
	batchCalls atomic.Int32
	delay      time.Duration
	fail       error
}

func (f *countingTranslator) Name() string { return "fake" }

func (f *countingTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		return "", f.fail
	}
	return lang + ":" + strings.ToUpper(text), nil
}

func (f *countingTranslator) TranslateBatch(ctx context.Context, texts []string, lang string) ([]string, error) {
	f.batchCalls.Add(1)
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = lang + ":" + strings.ToUpper(t)
	}
	return out, nil
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestCachedTranslatorHitsCache(t *testing.T) {
	inner := &countingTranslator{}
	c := NewCachedTranslator(inner, CacheOptions{TTL: time.Minute}, logging.Nop())

	for i := 0; i < 3; i++ {
		out, err := c.Translate(context.Background(), "hello", "id")
		require.NoError(t, err)
		assert.Equal(t, "id:HELLO", out)
	}

	assert.EqualValues(t, 1, inner.calls.Load())
	stats := c.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, "fake", c.Name())
}

func TestCacheKeyIncludesTargetLanguage(t *testing.T) {
	inner := &countingTranslator{}
	c := NewCachedTranslator(inner, CacheOptions{TTL: time.Minute}, logging.Nop())

	a, _ := c.Translate(context.Background(), "hello", "id")
	b, _ := c.Translate(context.Background(), "hello", "fr")

	assert.Equal(t, "id:HELLO", a)
	assert.Equal(t, "fr:HELLO", b)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestConcurrentIdenticalRequestsAreCoalesced(t *testing.T) {
	inner := &countingTranslator{delay: 20 * time.Millisecond}
	c := NewCachedTranslator(inner, CacheOptions{TTL: time.Minute}, logging.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Translate(context.Background(), "same line", "id")
			assert.NoError(t, err)
			assert.Equal(t, "id:SAME LINE", out)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestErrorsAreNotCached(t *testing.T) {
	inner := &countingTranslator{fail: fmt.Errorf("boom")}
	c := NewCachedTranslator(inner, CacheOptions{TTL: time.Minute}, logging.Nop())

	_, err := c.Translate(context.Background(), "hello", "id")
	assert.Error(t, err)
	_, err = c.Translate(context.Background(), "hello", "id")
	assert.Error(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestRemoteStoreServesOtherReplicas(t *testing.T) {
	store := &mapStore{data: map[string]string{}}

	first := NewCachedTranslator(&countingTranslator{}, CacheOptions{TTL: time.Minute, Remote: store}, logging.Nop())
	_, err := first.Translate(context.Background(), "hello", "id")
	require.NoError(t, err)

	inner := &countingTranslator{}
	second := NewCachedTranslator(inner, CacheOptions{TTL: time.Minute, Remote: store}, logging.Nop())
	out, err := second.Translate(context.Background(), "hello", "id")
	require.NoError(t, err)

	assert.Equal(t, "id:HELLO", out)
	assert.EqualValues(t, 0, inner.calls.Load())
	assert.EqualValues(t, 1, second.Stats().RemoteHits)
}

func TestTranslateBatchSendsOnlyMisses(t *testing.T) {
	inner := &countingTranslator{}
	c := NewCachedTranslator(inner, CacheOptions{TTL: time.Minute}, logging.Nop())

	_, err := c.Translate(context.Background(), "b", "id")
	require.NoError(t, err)

	out, err := c.TranslateBatch(context.Background(), []string{"a", "b", "", "c"}, "id")
	require.NoError(t, err)

	assert.Equal(t, []string{"id:A", "id:B", "", "id:C"}, out)
	assert.EqualValues(t, 1, inner.batchCalls.Load())
	assert.EqualValues(t, 1, inner.calls.Load())

	// everything is cached now
	_, err = c.TranslateBatch(context.Background(), []string{"a", "c"}, "id")
	require.NoError(t, err)
	assert.EqualValues(t, 1, inner.batchCalls.Load())
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default().Translator
	cfg.APIKey = "k"

	c, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "azure", c.Name())

	cfg.Provider = "deepl"
	c, err = NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "deepl", c.Name())

	cfg.Provider = "babel"
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)
}
