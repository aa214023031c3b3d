package fsabi

import "testing"

func TestReadWriteAt(t *testing.T) {
	fs := NewMemFS()
	fs.Create("a.txt", []byte("hello world"))

	f, err := fs.Open("a.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 6)
	if err != nil || n != 5 || string(buf) != "world" {
		t.Fatalf("ReadAt = (%q, %d, %v), want (\"world\", 5, nil)", buf[:n], n, err)
	}
}

func TestWriteAtGrows(t *testing.T) {
	fs := NewMemFS()
	fs.Create("a.txt", []byte("abc"))
	f, _ := fs.Open("a.txt")

	if _, err := f.WriteAt([]byte("XYZ"), 3); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if f.Length() != 6 {
		t.Fatalf("Length = %d, want 6", f.Length())
	}
	buf := make([]byte, 6)
	f.ReadAt(buf, 0)
	if string(buf) != "abcXYZ" {
		t.Fatalf("contents = %q, want abcXYZ", buf)
	}
}

func TestDenyWriteBlocksWrites(t *testing.T) {
	fs := NewMemFS()
	fs.Create("exe", []byte("code"))
	f, _ := fs.Open("exe")

	f.DenyWrite()
	if _, err := f.WriteAt([]byte("x"), 0); err == nil {
		t.Fatal("WriteAt succeeded while writes denied")
	}
	f.AllowWrite()
	if _, err := f.WriteAt([]byte("x"), 0); err != nil {
		t.Fatalf("WriteAt failed after AllowWrite: %v", err)
	}
}

func TestReopenSharesData(t *testing.T) {
	fs := NewMemFS()
	fs.Create("shared", []byte("v1"))
	f1, _ := fs.Open("shared")
	f2, err := f1.Reopen()
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	f1.WriteAt([]byte("v2"), 0)
	buf := make([]byte, 2)
	f2.ReadAt(buf, 0)
	if string(buf) != "v2" {
		t.Fatalf("reopened file sees %q, want v2 (shared inode)", buf)
	}
}

func TestOpenMissingFile(t *testing.T) {
	fs := NewMemFS()
	if _, err := fs.Open("nope"); err == nil {
		t.Fatal("Open of missing file did not error")
	}
}
