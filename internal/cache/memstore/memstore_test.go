package memstore

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := New(8, time.Minute)
	ctx := context.Background()

	if err := s.Set(ctx, "a:1/2/3:q=0", []byte("tile"), 0); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "a:1/2/3:q=0")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(v, []byte("tile")) {
		t.Fatalf("value = %q", v)
	}
}

func TestGetMiss(t *testing.T) {
	s := New(8, time.Minute)
	_, ok, err := s.Get(context.Background(), "missing")
	if err != nil || ok {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
}

func TestSetCopiesValue(t *testing.T) {
	s := New(8, time.Minute)
	ctx := context.Background()
	buf := []byte("original")
	if err := s.Set(ctx, "k", buf, 0); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'X'
	v, _, _ := s.Get(ctx, "k")
	if string(v) != "original" {
		t.Fatalf("cached value aliased caller buffer: %q", v)
	}
}

func TestDelPrefix(t *testing.T) {
	s := New(16, time.Minute)
	ctx := context.Background()
	for _, k := range []string{"roads:1/0/0:q=a", "roads:2/1/1:q=b", "water:1/0/0:q=a"} {
		if err := s.Set(ctx, k, []byte("x"), 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DelPrefix(ctx, "roads:"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "roads:1/0/0:q=a"); ok {
		t.Fatal("roads entry survived prefix purge")
	}
	if _, ok, _ := s.Get(ctx, "water:1/0/0:q=a"); !ok {
		t.Fatal("unrelated source was purged")
	}
}

func TestEviction(t *testing.T) {
	s := New(2, time.Minute)
	ctx := context.Background()
	for _, k := range []string{"k1", "k2", "k3"} {
		if err := s.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok, _ := s.Get(ctx, "k1"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok, _ := s.Get(ctx, "k3"); !ok {
		t.Fatal("newest entry missing")
	}
}
