package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMintsAnonymousIdentity(t *testing.T) {
	dir := t.TempDir()

	m, err := Load(dir, 30)
	if err != nil {
		t.Fatal(err)
	}

	u := m.User()
	if u.ID == "" {
		t.Fatal("expected a generated id")
	}
	if u.Name != "Anonymous 1" {
		t.Fatalf("expected Anonymous 1, got %q", u.Name)
	}
	if _, err := os.Stat(filepath.Join(dir, userFile)); err != nil {
		t.Fatalf("identity not persisted: %v", err)
	}
}

func TestLoadRestoresExistingIdentity(t *testing.T) {
	dir := t.TempDir()

	first, err := Load(dir, 30)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Rename("Alice"); err != nil {
		t.Fatal(err)
	}

	second, err := Load(dir, 30)
	if err != nil {
		t.Fatal(err)
	}
	if second.User().ID != first.User().ID {
		t.Fatal("restored identity must keep its id")
	}
	if second.User().Name != "Alice" {
		t.Fatalf("restored identity must keep its name, got %q", second.User().Name)
	}
}

func TestAnonymousCounterIsMonotonic(t *testing.T) {
	dir := t.TempDir()

	for i := 1; i <= 3; i++ {
		m, err := Load(dir, 30)
		if err != nil {
			t.Fatal(err)
		}
		want := "Anonymous " + string(rune('0'+i))
		if m.User().Name != want {
			t.Fatalf("run %d: expected %q, got %q", i, want, m.User().Name)
		}
		// Drop the persisted user so the next Load mints a new one.
		if err := os.Remove(filepath.Join(dir, userFile)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRenameBoundsLength(t *testing.T) {
	m, err := Load(t.TempDir(), 10)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Rename(strings.Repeat("n", 50)); err != nil {
		t.Fatal(err)
	}
	if got := len(m.User().Name); got != 10 {
		t.Fatalf("expected name capped at 10, got %d", got)
	}

	if err := m.Rename("   "); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}
