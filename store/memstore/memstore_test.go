package memstore

import (
	"context"
	"testing"
	"time"
)

func TestReadWrite(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	data, err := s.Read(ctx, "missing")
	if err != nil || data != nil {
		t.Fatalf("expected (nil, nil) for missing key, got (%v, %v)", data, err)
	}

	if err := s.Write(ctx, "k", []byte("hello")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	got, err := s.Read(ctx, "k")
	if err != nil || string(got) != "hello" {
		t.Fatalf("Read() = (%q, %v), want (hello, nil)", got, err)
	}
}

func TestLockUnlock(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	ok, err := s.Lock(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("first lock should succeed, got (%v, %v)", ok, err)
	}
	ok, err = s.Lock(ctx, "k")
	if err != nil || ok {
		t.Fatalf("second lock should fail while held, got (%v, %v)", ok, err)
	}
	unlocked, err := s.Unlock(ctx, "k")
	if err != nil || !unlocked {
		t.Fatalf("unlock should succeed, got (%v, %v)", unlocked, err)
	}
	ok, err = s.Lock(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("lock after unlock should succeed, got (%v, %v)", ok, err)
	}
}

func TestLockExpiry(t *testing.T) {
	s := New(20 * time.Millisecond)
	ctx := context.Background()

	ok, _ := s.Lock(ctx, "k")
	if !ok {
		t.Fatal("first lock should succeed")
	}
	time.Sleep(30 * time.Millisecond)
	ok, _ = s.Lock(ctx, "k")
	if !ok {
		t.Error("lock should be acquirable again after TTL expiry")
	}
}

func TestUnlockNotHeld(t *testing.T) {
	s := New(0)
	ok, err := s.Unlock(context.Background(), "never-locked")
	if err != nil || ok {
		t.Errorf("Unlock() of an unheld key = (%v, %v), want (false, nil)", ok, err)
	}
}
