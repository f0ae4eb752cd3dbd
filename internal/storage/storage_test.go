package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type record struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TimeSinceBackup int    `json:"timeSinceBackup"`
}

func TestStorage_PutAndGet(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)
	ctx := context.Background()

	data := record{ID: "123", Name: "alpha", TimeSinceBackup: 42}

	if err := s.Put(ctx, []string{"world", "123"}, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	filePath := filepath.Join(tmpDir, "world", "123.json")
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		t.Fatal("File was not created")
	}

	var retrieved record
	if err := s.Get(ctx, []string{"world", "123"}, &retrieved); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved != data {
		t.Errorf("Data mismatch: got %+v, want %+v", retrieved, data)
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	s := New(t.TempDir())

	var data record
	err := s.Get(context.Background(), []string{"world", "missing"}, &data)
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStorage_InvalidKey(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	for _, key := range [][]string{{"world", ".."}, {"world", "a/b"}, {"", "x"}} {
		err := s.Put(ctx, key, record{})
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%v): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStorage_Delete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if err := s.Put(ctx, []string{"world", "gone"}, record{ID: "gone"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, []string{"world", "gone"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var retrieved record
	if err := s.Get(ctx, []string{"world", "gone"}, &retrieved); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}

	if err := s.Delete(ctx, []string{"world", "gone"}); err != nil {
		t.Errorf("Delete of nonexistent item should not error: %v", err)
	}
}

func TestStorage_Scan(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	expected := map[string]record{
		"a": {ID: "a", Name: "first"},
		"b": {ID: "b", Name: "second"},
	}
	for id, data := range expected {
		if err := s.Put(ctx, []string{"world", id}, data); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	scanned := make(map[string]record)
	err := s.Scan(ctx, []string{"world"}, func(key string, data json.RawMessage) error {
		var item record
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		scanned[key] = item
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	for id, exp := range expected {
		if got, ok := scanned[id]; !ok || got != exp {
			t.Errorf("Mismatch for %s: got %+v, want %+v", id, got, exp)
		}
	}
}

func TestStorage_AtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)

	if err := s.Put(context.Background(), []string{"world", "atomic"}, record{ID: "atomic"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "world", "atomic.json.tmp")); !os.IsNotExist(err) {
		t.Error("Temp file should not exist after successful write")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "world", "atomic.json.lock")); !os.IsNotExist(err) {
		t.Error("Lock file should be removed after unlock")
	}
}

func TestFileLock_ContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record")

	holder := NewFileLock(path)
	if !holder.TryLock() {
		t.Fatal("TryLock should succeed on a free lock")
	}
	defer holder.Unlock()

	// A second lock object models another process holding the flock.
	waiter := NewFileLock(path)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := waiter.Lock(ctx); err == nil {
		waiter.Unlock()
		t.Fatal("Lock should fail while another holder has the flock")
	}
}
