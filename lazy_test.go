package ghcatalog

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestLazyCache(t *testing.T) (*Cache, FileID, *os.File) {
	t.Helper()
	cfg := Config{PageSize: 128, CachePages: numShards * 4, HashAlgorithm: AlgXXHash3}
	c, err := NewCache(cfg)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "records.dat"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	id := FileID(1)
	c.Register(id, f)
	return c, id, f
}

func TestLazyGetMaterialisesFixedAndVariableFields(t *testing.T) {
	c, id, f := newTestLazyCache(t)

	commit := Commit{
		RepoID:      1,
		AuthorID:    2,
		CommitterID: 3,
		CommitAt:    Date{Year: 2015, Month: 3, Day: 17}.Pack(),
		Message:     "fix bug",
		HasMessage:  true,
	}
	rec := commit.toRecord()
	buf := commitFormat.WriteBinary(rec)
	if _, err := f.WriteAt(buf, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	lz, err := NewLazy(c, id, 0, commitFormat)
	if err != nil {
		t.Fatalf("NewLazy: %v", err)
	}

	v, err := lz.Get(commitFieldRepoID)
	if err != nil || v.Int32 != 1 {
		t.Errorf("repo_id = %d, %v; want 1", v.Int32, err)
	}
	v, err = lz.Get(commitFieldAuthorID)
	if err != nil || v.Int32 != 2 {
		t.Errorf("author_id = %d, %v; want 2", v.Int32, err)
	}
	v, err = lz.Get(commitFieldMessage)
	if err != nil {
		t.Fatalf("Get(message): %v", err)
	}
	if !v.Valid || v.Str != "fix bug" {
		t.Errorf("message = %q (valid=%v), want %q", v.Str, v.Valid, "fix bug")
	}
}

func TestLazyGetNullMessage(t *testing.T) {
	c, id, f := newTestLazyCache(t)
	commit := Commit{RepoID: 1, AuthorID: 2, CommitterID: 3, HasMessage: false}
	rec := commit.toRecord()
	buf := commitFormat.WriteBinary(rec)
	if _, err := f.WriteAt(buf, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	lz, err := NewLazy(c, id, 0, commitFormat)
	if err != nil {
		t.Fatalf("NewLazy: %v", err)
	}
	v, err := lz.Get(commitFieldMessage)
	if err != nil {
		t.Fatalf("Get(message): %v", err)
	}
	if v.Valid {
		t.Error("expected message to be invalid (null)")
	}
}

func TestLazySetFlushRoundTrip(t *testing.T) {
	c, id, f := newTestLazyCache(t)
	commit := Commit{RepoID: 1, AuthorID: 2, CommitterID: 3, HasMessage: false}
	rec := commit.toRecord()
	buf := commitFormat.WriteBinary(rec)
	if _, err := f.WriteAt(buf, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	lz, err := NewLazy(c, id, 0, commitFormat)
	if err != nil {
		t.Fatalf("NewLazy: %v", err)
	}
	lz.Set(commitFieldAuthorIsFriend, Value{Bool: true})
	if err := lz.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Re-read through a fresh Lazy over the same offsets to confirm the
	// write reached the shared Cache, not just lz's own field values.
	lz2, err := NewLazy(c, id, 0, commitFormat)
	if err != nil {
		t.Fatalf("NewLazy: %v", err)
	}
	v, err := lz2.Get(commitFieldAuthorIsFriend)
	if err != nil || !v.Bool {
		t.Errorf("author_is_friend = %v, %v; want true", v.Bool, err)
	}
}

func TestLazyOffsetAfterMatchesRecordSize(t *testing.T) {
	c, id, f := newTestLazyCache(t)
	commit := Commit{RepoID: 1, AuthorID: 2, CommitterID: 3, Message: "hi", HasMessage: true}
	rec := commit.toRecord()
	buf := commitFormat.WriteBinary(rec)
	if _, err := f.WriteAt(buf, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	lz, err := NewLazy(c, id, 0, commitFormat)
	if err != nil {
		t.Fatalf("NewLazy: %v", err)
	}
	end, err := lz.OffsetAfter()
	if err != nil {
		t.Fatalf("OffsetAfter: %v", err)
	}
	if int(end) != len(buf) {
		t.Errorf("OffsetAfter = %d, want %d (len of the encoded record)", end, len(buf))
	}
}

func TestLazyRetargetReadsSecondRecord(t *testing.T) {
	c, id, f := newTestLazyCache(t)
	first := Commit{RepoID: 1, AuthorID: 1, CommitterID: 1, HasMessage: false}
	second := Commit{RepoID: 2, AuthorID: 2, CommitterID: 2, HasMessage: false}

	firstBuf := commitFormat.WriteBinary(first.toRecord())
	if _, err := f.WriteAt(firstBuf, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	secondOff := int64(len(firstBuf))
	secondBuf := commitFormat.WriteBinary(second.toRecord())
	if _, err := f.WriteAt(secondBuf, secondOff); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	lz, err := NewLazy(c, id, 0, commitFormat)
	if err != nil {
		t.Fatalf("NewLazy: %v", err)
	}
	v, _ := lz.Get(commitFieldRepoID)
	if v.Int32 != 1 {
		t.Fatalf("first record repo_id = %d, want 1", v.Int32)
	}

	lz.retarget(id, secondOff)
	v, err = lz.Get(commitFieldRepoID)
	if err != nil || v.Int32 != 2 {
		t.Errorf("second record repo_id = %d, %v; want 2", v.Int32, err)
	}
}

func TestNewLazyRejectsEmptyFormat(t *testing.T) {
	c, id, _ := newTestLazyCache(t)
	empty := &Format{Name: "empty", Separator: ';'}
	if _, err := NewLazy(c, id, 0, empty); err != ErrLazyRequiresBinary {
		t.Errorf("NewLazy(empty format) = %v, want ErrLazyRequiresBinary", err)
	}
}
