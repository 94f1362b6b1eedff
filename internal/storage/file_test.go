package storage

import (
	"context"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	backend := NewFileBackend(t.TempDir())
	ctx := context.Background()

	if err := backend.Save(ctx, "wallet.session", []byte(`{"address":"0xabc"}`)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, ok, err := backend.Load(ctx, "wallet.session")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if string(data) != `{"address":"0xabc"}` {
		t.Fatalf("data mismatch: %s", data)
	}
}

func TestFileBackendMissingKey(t *testing.T) {
	backend := NewFileBackend(t.TempDir())

	_, ok, err := backend.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if ok {
		t.Fatalf("missing key should report not found")
	}
}

func TestFileBackendDeleteIdempotent(t *testing.T) {
	backend := NewFileBackend(t.TempDir())
	ctx := context.Background()

	if err := backend.Save(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := backend.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := backend.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}

	_, ok, err := backend.Load(ctx, "k")
	if err != nil || ok {
		t.Fatalf("deleted key should be gone (ok=%v err=%v)", ok, err)
	}
}
