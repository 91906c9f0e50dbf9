package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock_WritesOwner(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	owner, err := ReadOwner(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("ReadOwner: %v", err)
	}
	if owner.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", owner.PID, os.Getpid())
	}
	if owner.Started.IsZero() {
		t.Error("start time not recorded")
	}
}

func TestAcquireLock_Conflict(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	_, err = AcquireLock(dir)
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("second AcquireLock err = %v, want *LockError", err)
	}
	if lockErr.Owner.PID != os.Getpid() {
		t.Errorf("conflict owner PID = %d, want %d", lockErr.Owner.PID, os.Getpid())
	}
	if lockErr.Unwrap() == nil {
		t.Error("LockError should wrap the flock error")
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again.Release()
}

func TestAcquireLock_CreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state dir not created: %v", err)
	}
}

func TestParseOwner(t *testing.T) {
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		content string
		want    Owner
	}{
		{"full", "pid=42\nstarted=2026-03-02T10:00:00Z\n", Owner{PID: 42, Started: started}},
		{"pid only", "pid=7\n", Owner{PID: 7}},
		{"garbage", "hello", Owner{}},
		{"empty", "", Owner{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOwner(tt.content)
			if got.PID != tt.want.PID || !got.Started.Equal(tt.want.Started) {
				t.Errorf("parseOwner(%q) = %+v, want %+v", tt.content, got, tt.want)
			}
		})
	}
}

func TestOwnerString(t *testing.T) {
	if got := (Owner{}).String(); got != "unknown process" {
		t.Errorf("zero owner = %q", got)
	}
	if got := (Owner{PID: os.Getpid()}).String(); got == "" {
		t.Error("owner string should not be empty")
	}
}
