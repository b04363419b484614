package writer

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"

	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/hyperlink"
	"github.com/dshills/streamview/internal/vfs"
)

// renameFaultFS fails every Rename, simulating a destination locked by
// another process during the replace step.
type renameFaultFS struct {
	vfs.VFS
	err error
}

func (f *renameFaultFS) Rename(oldPath, newPath string) error {
	return f.err
}

func TestSave_NewFile(t *testing.T) {
	fsys := vfs.NewMemFS()
	w := New(fsys)

	if err := w.Save(context.Background(), "/doc.txt", "hello\nworld\n"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := fsys.ReadFile("/doc.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello\nworld\n" {
		t.Errorf("saved content = %q", data)
	}
	if fsys.Exists("/doc.txt" + TempSuffix) {
		t.Error("temp file left behind")
	}
	if fsys.Exists("/doc.txt" + BackupSuffix) {
		t.Error("backup created for a new file")
	}
}

func TestSave_FinalLineWithoutNewline(t *testing.T) {
	fsys := vfs.NewMemFS()
	w := New(fsys)

	if err := w.Save(context.Background(), "/doc.txt", "line one\nno newline at end"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, _ := fsys.ReadFile("/doc.txt")
	if string(data) != "line one\nno newline at end" {
		t.Errorf("content did not round-trip: %q", data)
	}
}

func TestSave_OverwriteDropsBackup(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.AddFile("/doc.txt", "old content\n")
	w := New(fsys)

	if err := w.Save(context.Background(), "/doc.txt", "new content\n"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, _ := fsys.ReadFile("/doc.txt")
	if string(data) != "new content\n" {
		t.Errorf("content = %q", data)
	}
	if fsys.Exists("/doc.txt" + BackupSuffix) {
		t.Error("backup should be removed after a successful save")
	}
}

func TestSave_RollbackOnReplaceFailure(t *testing.T) {
	base := vfs.NewMemFS()
	base.AddFile("/doc.txt", "precious original\n")
	fsys := &renameFaultFS{VFS: base, err: fs.ErrPermission}
	w := New(fsys)

	err := w.Save(context.Background(), "/doc.txt", "replacement\n")
	if err == nil {
		t.Fatal("expected the save to fail")
	}

	data, rerr := base.ReadFile("/doc.txt")
	if rerr != nil {
		t.Fatalf("original vanished: %v", rerr)
	}
	if string(data) != "precious original\n" {
		t.Errorf("original corrupted: %q", data)
	}
	if base.Exists("/doc.txt" + TempSuffix) {
		t.Error("temp file left behind after rollback")
	}
}

func TestSave_EmptyPath(t *testing.T) {
	w := New(vfs.NewMemFS())
	if err := w.Save(context.Background(), "", "content"); !errors.Is(err, eerrors.ErrInvalidInput) {
		t.Errorf("want ErrInvalidInput, got %v", err)
	}
}

func TestSave_RejectsInvalidUTF8(t *testing.T) {
	w := New(vfs.NewMemFS())
	bad := string([]byte{0xff, 0xfe, 0xfd})
	if err := w.Save(context.Background(), "/doc.txt", bad); !errors.Is(err, eerrors.ErrInvalidInput) {
		t.Errorf("want ErrInvalidInput, got %v", err)
	}
}

func TestSave_InsufficientSpace(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.SetFreeSpace(10) // content needs 2x its size free
	w := New(fsys)

	err := w.Save(context.Background(), "/doc.txt", "this content is longer than five bytes\n")
	if !errors.Is(err, eerrors.ErrInsufficientSpace) {
		t.Errorf("want ErrInsufficientSpace, got %v", err)
	}
	if fsys.Exists("/doc.txt") {
		t.Error("nothing should be written when space is insufficient")
	}
}

func TestSave_Cancelled(t *testing.T) {
	fsys := vfs.NewMemFS()
	w := New(fsys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Save(ctx, "/doc.txt", "content\n")
	if !eerrors.IsCancelled(err) {
		t.Errorf("want ErrCancelled, got %v", err)
	}
	if fsys.Exists("/doc.txt") {
		t.Error("cancelled save should leave nothing behind")
	}
}

func TestSave_CRLFTerminator(t *testing.T) {
	fsys := vfs.NewMemFS()
	w := New(fsys, WithLineTerminator("\r\n"))

	if err := w.Save(context.Background(), "/doc.txt", "a\nb\n"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, _ := fsys.ReadFile("/doc.txt")
	if string(data) != "a\r\nb\r\n" {
		t.Errorf("content = %q, want CRLF terminators", data)
	}
}

func TestSave_ManyLinesWithSmallFlush(t *testing.T) {
	fsys := vfs.NewMemFS()
	w := New(fsys, WithFlushEvery(3))

	content := strings.Repeat("line\n", 100)
	if err := w.Save(context.Background(), "/doc.txt", content); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, _ := fsys.ReadFile("/doc.txt")
	if string(data) != content {
		t.Error("content did not survive periodic flushing")
	}
}

func TestSaveWithHyperlinks_RoundTrip(t *testing.T) {
	fsys := vfs.NewMemFS()
	w := New(fsys)

	content := "Click here for details.\n"
	links := []hyperlink.Link{
		{StartIndex: 6, Length: 4, URL: "https://example.com/details", DisplayText: "here"},
	}

	if err := w.SaveWithHyperlinks(context.Background(), "/doc.txt", content, links); err != nil {
		t.Fatalf("SaveWithHyperlinks failed: %v", err)
	}

	data, err := fsys.ReadFile("/doc.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	clean, got := hyperlink.Extract(string(data))
	if clean != content {
		t.Errorf("extracted content = %q, want %q", clean, content)
	}
	if len(got) != 1 || got[0] != links[0] {
		t.Errorf("extracted links = %+v, want %+v", got, links)
	}
}

func TestSaveFrom(t *testing.T) {
	fsys := vfs.NewMemFS()
	w := New(fsys)

	content := "streamed line one\nstreamed line two\n"
	if err := w.SaveFrom(context.Background(), "/doc.txt", strings.NewReader(content), 0); err != nil {
		t.Fatalf("SaveFrom failed: %v", err)
	}
	data, _ := fsys.ReadFile("/doc.txt")
	if string(data) != content {
		t.Errorf("content = %q", data)
	}
}

func TestSaveFrom_SizeHintChecksSpace(t *testing.T) {
	fsys := vfs.NewMemFS()
	fsys.SetFreeSpace(10)
	w := New(fsys)

	err := w.SaveFrom(context.Background(), "/doc.txt", strings.NewReader("x"), 1000)
	if !errors.Is(err, eerrors.ErrInsufficientSpace) {
		t.Errorf("want ErrInsufficientSpace, got %v", err)
	}
}
