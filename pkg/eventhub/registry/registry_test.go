package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	r := New[string, int]()
	assert.NotNil(t, r)
	assert.Equal(t, 0, r.Len())
}

func TestInsertAndGet(t *testing.T) {
	r := New[string, int]()

	assert.True(t, r.Insert("one", 1))
	assert.True(t, r.Insert("two", 2))

	v, ok := r.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Get("three")
	assert.False(t, ok)
	assert.Equal(t, 0, v) // zero value
}

func TestInsertRejectsExistingKey(t *testing.T) {
	r := New[string, string]()

	assert.True(t, r.Insert("key", "first"))
	assert.False(t, r.Insert("key", "second"))

	v, _ := r.Get("key")
	assert.Equal(t, "first", v, "existing entry must be unaffected")
	assert.Equal(t, 1, r.Len())
}

func TestInsertionOrder(t *testing.T) {
	r := New[string, int]()
	for i, k := range []string{"c", "a", "b"} {
		r.Insert(k, i)
	}

	assert.Equal(t, []string{"c", "a", "b"}, r.Keys())
	assert.Equal(t, []int{0, 1, 2}, r.Values())

	var seen []string
	r.Range(func(k string, _ int) bool {
		seen = append(seen, k)
		return true
	})
	assert.Equal(t, []string{"c", "a", "b"}, seen)
}

func TestDelete(t *testing.T) {
	r := New[string, int]()
	r.Insert("a", 1)
	r.Insert("b", 2)
	r.Insert("c", 3)

	v, ok := r.Delete("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.False(t, r.Has("b"))
	assert.Equal(t, []string{"a", "c"}, r.Keys())

	_, ok = r.Delete("missing")
	assert.False(t, ok)

	// A deleted key can be inserted again and goes to the back.
	assert.True(t, r.Insert("b", 4))
	assert.Equal(t, []string{"a", "c", "b"}, r.Keys())
}

func TestRangeEarlyStop(t *testing.T) {
	r := New[int, int]()
	for i := range 10 {
		r.Insert(i, i)
	}

	count := 0
	r.Range(func(_, _ int) bool {
		count++
		return count < 3
	})
	assert.Equal(t, 3, count)
}

func TestRangeAllowsMutation(t *testing.T) {
	r := New[string, int]()
	r.Insert("a", 1)
	r.Insert("b", 2)

	visited := 0
	r.Range(func(k string, _ int) bool {
		visited++
		r.Delete(k)
		r.Insert(k+"-new", 0)
		return true
	})

	assert.Equal(t, 2, visited)
	assert.Equal(t, []string{"a-new", "b-new"}, r.Keys())
}

func TestConcurrentInsertSameKey(t *testing.T) {
	r := New[string, int]()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := range 100 {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			if r.Insert("only", val) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, r.Len())
}

func TestConcurrentReadWrite(t *testing.T) {
	r := New[int, int]()
	var wg sync.WaitGroup

	for i := range 200 {
		wg.Add(2)
		go func(key int) {
			defer wg.Done()
			r.Insert(key, key*2)
		}(i)
		go func(key int) {
			defer wg.Done()
			if v, ok := r.Get(key); ok {
				assert.Equal(t, key*2, v)
			}
			_ = r.Values()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, r.Len())
	assert.Len(t, r.Keys(), 200)
}
