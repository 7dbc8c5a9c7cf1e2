package cleanup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCloseRemovesRegisteredPaths(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "scratch.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	scope := NewScope(nil)
	scope.RegisterTemp(f)
	scope.Close()

	if _, err := os.Stat(f); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed, stat err = %v", f, err)
	}
}

func TestTransferOutKeepsPathPastClose(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.mp4")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	scope := NewScope(nil)
	scope.RegisterTemp(keep)
	scope.TransferOut(keep)
	scope.Close()

	if _, err := os.Stat(keep); err != nil {
		t.Errorf("expected %s to survive close, stat err = %v", keep, err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	scope := NewScope(nil)
	scope.RegisterTemp(filepath.Join(t.TempDir(), "a"))
	scope.Close()
	scope.Close() // must not panic or double-process
}

func TestCloseWarnsOnRemovalFailureNotOnMissingFile(t *testing.T) {
	var warned []string
	scope := NewScope(func(path string, err error) { warned = append(warned, path) })
	scope.RegisterTemp(filepath.Join(t.TempDir(), "never-existed"))
	scope.Close()

	if len(warned) != 0 {
		t.Errorf("expected no warning for an already-missing path, got %v", warned)
	}
}

func TestRegisteredReturnsSnapshot(t *testing.T) {
	scope := NewScope(nil)
	scope.RegisterTemp("/tmp/a")
	scope.RegisterTemp("/tmp/b")

	got := scope.Registered()
	if len(got) != 2 {
		t.Fatalf("len(Registered()) = %d, want 2", len(got))
	}

	scope.TransferOut("/tmp/a")
	if len(scope.Registered()) != 1 {
		t.Error("expected TransferOut to remove the path from future snapshots")
	}
	scope.Close()
}

func TestRegisterTempAfterCloseIsNoop(t *testing.T) {
	scope := NewScope(nil)
	scope.Close()
	scope.RegisterTemp(filepath.Join(t.TempDir(), "late"))
	if len(scope.Registered()) != 0 {
		t.Error("expected RegisterTemp on a closed scope to be a no-op")
	}
}
