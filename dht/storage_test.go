package dht

import (
	"bytes"
	"testing"
)

func TestStorage_StoreAndGet(t *testing.T) {
	s := NewStorage()
	key := testIdentifier(1)
	s.Store(key, []byte("value"))

	v, ok := s.Get(key)
	if !ok {
		t.Fatal("expected key to be present")
	}
	if !bytes.Equal(v, []byte("value")) {
		t.Fatalf("got %q, want %q", v, "value")
	}
}

func TestStorage_GetMissing(t *testing.T) {
	s := NewStorage()
	if _, ok := s.Get(testIdentifier(1)); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestStorage_StoreOverwrites(t *testing.T) {
	s := NewStorage()
	key := testIdentifier(1)
	s.Store(key, []byte("first"))
	s.Store(key, []byte("second"))

	v, _ := s.Get(key)
	if !bytes.Equal(v, []byte("second")) {
		t.Fatalf("got %q, want %q", v, "second")
	}
	if s.Len() != 1 {
		t.Fatalf("got len %d, want 1 (overwrite, not append)", s.Len())
	}
}

func TestStorage_Exist(t *testing.T) {
	s := NewStorage()
	key := testIdentifier(1)
	if s.Exist(key) {
		t.Fatal("unexpected hit before store")
	}
	s.Store(key, []byte("x"))
	if !s.Exist(key) {
		t.Fatal("expected hit after store")
	}
}

func TestStorage_GetReturnsCopy(t *testing.T) {
	s := NewStorage()
	key := testIdentifier(1)
	original := []byte("mutate me")
	s.Store(key, original)

	v, _ := s.Get(key)
	v[0] = 'X'

	v2, _ := s.Get(key)
	if !bytes.Equal(v2, original) {
		t.Fatal("mutating the returned slice should not affect stored data")
	}
}
