package process

import (
	"testing"

	"kernelcore/internal/fsabi"
	"kernelcore/internal/kthread"
	"kernelcore/internal/palloc"
	"kernelcore/internal/vm"
)

// TestProcessLifecycle exercises fork, mmap/munmap, and exit/wait
// together against one running scheduler: kthread.Start panics if
// called a second time in the same process, so every scenario below
// runs as a subtest of a single boot.
func TestProcessLifecycle(t *testing.T) {
	kthread.Configure(false)
	kthread.Start("main", kthread.PriDefault, func(*kthread.Thread) {
		runProcessScenarios(t)
	})
}

func runProcessScenarios(t *testing.T) {
	t.Run("ForkSharesThenSplitsOnWrite", testForkCopyOnWrite)
	t.Run("ForkDuplicatesFileDescriptors", testForkDuplicatesFDs)
	t.Run("ExitWaitReturnsStatus", testExitWaitReturnsStatus)
	t.Run("WaitUnknownChildErrors", testWaitUnknownChildErrors)
	t.Run("MmapLazyLoadAndMunmapWriteback", testMmapLazyLoadAndWriteback)
}

func newEnv() *vm.FrameTable {
	ft := vm.NewFrameTable(palloc.NewPool(0, 64))
	vm.SetGlobalFrameTable(ft)
	vm.SetDefaultSwapDisk(vm.NewSwapDisk(32))
	return ft
}

func testForkCopyOnWrite(t *testing.T) {
	ft := newEnv()
	parent := New("parent", ft)

	page := vm.NewAnonPage(0x4000, true)
	parent.SPT.Insert(page)
	vm.ClaimPage(ft, page)
	ft.Pool().Bytes(*page.Frame)[0] = 42

	child, err := Fork(parent, "child", nil)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	parentPage := parent.SPT.Find(0x4000)
	childPage := child.SPT.Find(0x4000)
	if parentPage.Writable || childPage.Writable {
		t.Fatal("pages should be read-only immediately after fork")
	}
	if *parentPage.Frame != *childPage.Frame {
		t.Fatal("parent and child should share a frame right after fork")
	}

	info := vm.FaultInfo{Addr: 0x4000, User: true, Write: true}
	if !vm.HandleFault(child.SPT, ft, info) {
		t.Fatal("copy-on-write fault on child page failed")
	}
	if *parent.SPT.Find(0x4000).Frame == *child.SPT.Find(0x4000).Frame {
		t.Fatal("child should own a private frame after CoW split")
	}
	if ft.Pool().Bytes(*parentPage.Frame)[0] != 42 {
		t.Fatal("parent's original page contents changed across fork")
	}
}

func testForkDuplicatesFDs(t *testing.T) {
	ft := newEnv()
	parent := New("parent", ft)
	fs := fsabi.NewMemFS()
	fs.Create("data.txt", []byte("abc"))
	f, _ := fs.Open("data.txt")
	fd := parent.AddFile(f)

	child, err := Fork(parent, "child", nil)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	childFile := child.File(fd)
	if childFile == nil {
		t.Fatal("child did not inherit parent's file descriptor")
	}
	buf := make([]byte, 3)
	childFile.ReadAt(buf, 0)
	if string(buf) != "abc" {
		t.Fatalf("child's duplicated fd reads %q, want abc", buf)
	}
}

func testExitWaitReturnsStatus(t *testing.T) {
	ft := newEnv()
	parent := New("parent", ft)

	child, err := Fork(parent, "child", func(c *Process) {
		c.Exit(7)
	})
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	status, err := parent.Wait(child.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if status != 7 {
		t.Fatalf("Wait returned status %d, want 7", status)
	}

	// Let the now-acknowledged child run to completion and be reaped
	// before the next subtest touches the shared scheduler state.
	kthread.Yield()
}

func testWaitUnknownChildErrors(t *testing.T) {
	ft := newEnv()
	parent := New("parent", ft)
	if _, err := parent.Wait(999999); err == nil {
		t.Fatal("Wait on an unknown pid should return an error")
	}
}

func testMmapLazyLoadAndWriteback(t *testing.T) {
	ft := newEnv()
	p := New("mapper", ft)

	fs := fsabi.NewMemFS()
	contents := make([]byte, vm.PageSize+10)
	copy(contents, "mmap-contents")
	fs.Create("image.bin", contents)
	f, _ := fs.Open("image.bin")

	const base vm.VA = 0x200000
	addr, err := p.Mmap(base, 2, f, 0, len(contents))
	if err != nil {
		t.Fatalf("Mmap: %v", err)
	}
	if addr != base {
		t.Fatalf("Mmap returned %#x, want %#x", addr, base)
	}

	page := p.SPT.Find(base)
	if page == nil {
		t.Fatal("no page installed at mmap base")
	}
	if !vm.ClaimPage(ft, page) {
		t.Fatal("ClaimPage on mmap'd page failed")
	}
	buf := ft.Pool().Bytes(*page.Frame)
	if string(buf[:13]) != "mmap-contents" {
		t.Fatalf("lazy-loaded contents = %q", buf[:13])
	}

	buf[0] = 'M'
	ft.Pool().SetDirty(*page.Frame, true)

	if err := p.Munmap(base); err != nil {
		t.Fatalf("Munmap: %v", err)
	}
	if p.SPT.Find(base) != nil {
		t.Fatal("page still present after Munmap")
	}

	f2, _ := fs.Open("image.bin")
	out := make([]byte, 1)
	f2.ReadAt(out, 0)
	if out[0] != 'M' {
		t.Fatal("dirty mmap'd page was not written back on Munmap")
	}
}
