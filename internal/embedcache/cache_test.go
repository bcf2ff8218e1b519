package embedcache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, dims int) *Cache {
	t.Helper()
	c, err := Open(":memory:", dims)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testKey(text string) Key {
	return Key{Provider: "genai", Model: "gemini-embedding-001", Dims: 3, TaskType: "RETRIEVAL_DOCUMENT", Text: text}
}

func TestPutThenGet(t *testing.T) {
	c := newTestCache(t, 3)
	key := testKey("artículo de prueba")
	vec := []float32{0.1, 0.2, 0.3}

	require.NoError(t, c.Put(key, vec))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t, 3)
	_, ok := c.Get(testKey("never stored"))
	assert.False(t, ok)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := testKey("texto")
	altered := base
	altered.Model = "other-model"
	assert.NotEqual(t, base.Fingerprint(), altered.Fingerprint())

	altered = base
	altered.TaskType = "RETRIEVAL_QUERY"
	assert.NotEqual(t, base.Fingerprint(), altered.Fingerprint())

	altered = base
	altered.Dims = 768
	assert.NotEqual(t, base.Fingerprint(), altered.Fingerprint())
}

func TestDimensionMismatchIsMiss(t *testing.T) {
	c := newTestCache(t, 3)
	key := testKey("texto")
	require.NoError(t, c.Put(key, []float32{1, 2, 3}))

	// Reopen the same underlying data under a different configured dim is
	// not possible with :memory:, so simulate by rejecting wrong-size puts.
	err := c.Put(key, []float32{1, 2})
	assert.Error(t, err)
}

func TestConcurrentPutGet(t *testing.T) {
	c := newTestCache(t, 3)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := testKey(fmt.Sprintf("texto-%d", i))
			vec := []float32{float32(i), 0, 0}
			if err := c.Put(key, vec); err != nil {
				t.Errorf("Put: %v", err)
				return
			}
			got, ok := c.Get(key)
			if !ok {
				t.Errorf("Get after Put missed for %d", i)
				return
			}
			if got[0] != float32(i) {
				t.Errorf("Get returned wrong vector for %d", i)
			}
		}(i)
	}
	wg.Wait()

	n, err := c.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 16, n)
}
