package ghcatalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestComputeFingerprintDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "accounts.csv", "id;login\n1;alice\n")
	b := writeTempFile(t, dir, "repositories.csv", "id;name\n1;repo\n")

	f1, err := computeFingerprint([]string{a, b}, AlgXXHash3)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	f2, err := computeFingerprint([]string{a, b}, AlgXXHash3)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	if f1 != f2 {
		t.Errorf("fingerprint not deterministic: %d vs %d", f1, f2)
	}
}

func TestComputeFingerprintChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "accounts.csv", "id;login\n1;alice\n")
	f1, err := computeFingerprint([]string{path}, AlgXXHash3)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}

	// Force a distinguishable mtime even on filesystems with coarse
	// resolution, then change the content.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.WriteFile(path, []byte("id;login\n1;alice\n2;bob\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	f2, err := computeFingerprint([]string{path}, AlgXXHash3)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	if f1 == f2 {
		t.Error("fingerprint did not change after content and mtime changed")
	}
}

func TestComputeFingerprintOrderSensitive(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "a.csv", "aaaa")
	b := writeTempFile(t, dir, "b.csv", "bbbb")

	f1, err := computeFingerprint([]string{a, b}, AlgXXHash3)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	f2, err := computeFingerprint([]string{b, a}, AlgXXHash3)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	if f1 == f2 {
		t.Error("fingerprint should depend on input file order")
	}
}

func TestComputeFingerprintAlgorithmSensitive(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "accounts.csv", "id;login\n1;alice\n")

	fx, err := computeFingerprint([]string{path}, AlgXXHash3)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	fb, err := computeFingerprint([]string{path}, AlgBlake2b)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	if fx == fb {
		t.Error("fingerprint should differ across hash algorithms")
	}
}

func TestComputeFingerprintMissingFile(t *testing.T) {
	_, err := computeFingerprint([]string{"/nonexistent/path/accounts.csv"}, AlgXXHash3)
	if err == nil {
		t.Fatal("expected an error for a missing input file")
	}
}
