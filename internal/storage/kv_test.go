package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryKV_PutGetDelete(t *testing.T) {
	kv := NewInMemoryKV()
	_, ok := kv.Get("missing")
	assert.False(t, ok)

	kv.Put("a", 42)
	v, ok := kv.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	kv.Delete("a")
	_, ok = kv.Get("a")
	assert.False(t, ok)
}

func TestStore_GetOrCreateIsStableAndIsolated(t *testing.T) {
	store := NewStore()
	kv1 := store.GetOrCreate("conv-1")
	kv1.Put("k", "v1")

	kv1Again := store.GetOrCreate("conv-1")
	v, ok := kv1Again.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	kv2 := store.GetOrCreate("conv-2")
	_, ok = kv2.Get("k")
	assert.False(t, ok)

	assert.Equal(t, 2, store.Count())
	store.Remove("conv-1")
	assert.Equal(t, 1, store.Count())
}
