package vm

import (
	"testing"

	"kernelcore/internal/fsabi"
	"kernelcore/internal/kthread"
	"kernelcore/internal/palloc"
)

func freshEnv(t *testing.T, kernelFrames, userFrames, swapSlots int) *FrameTable {
	t.Helper()
	ft := NewFrameTable(palloc.NewPool(kernelFrames, userFrames))
	SetGlobalFrameTable(ft)
	SetDefaultSwapDisk(NewSwapDisk(swapSlots))
	return ft
}

func TestClaimAnonPageZeroFilled(t *testing.T) {
	ft := freshEnv(t, 0, 4, 8)
	spt := NewSupplementalPageTable()
	page := NewAnonPage(0x1000, true)
	if !spt.Insert(page) {
		t.Fatal("Insert failed")
	}
	if !ClaimPage(ft, page) {
		t.Fatal("ClaimPage failed")
	}
	buf := ft.Pool().Bytes(*page.Frame)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 on fresh anon page", i, b)
		}
	}
}

func TestFrameEvictionFIFOAndSwapRoundTrip(t *testing.T) {
	ft := freshEnv(t, 0, 1, 8)
	spt := NewSupplementalPageTable()

	p1 := NewAnonPage(0x1000, true)
	spt.Insert(p1)
	ClaimPage(ft, p1)
	ft.Pool().Bytes(*p1.Frame)[0] = 0xAB

	// Only one user frame exists; claiming a second page must evict p1.
	p2 := NewAnonPage(0x2000, true)
	spt.Insert(p2)
	if !ClaimPage(ft, p2) {
		t.Fatal("ClaimPage(p2) failed to evict and reuse the frame")
	}
	if p1.FrameSet {
		t.Fatal("p1 still resident after eviction")
	}
	if p1.anon.swapSlot < 0 {
		t.Fatal("p1 has no swap slot after eviction")
	}

	// Faulting p1 back in should evict p2 in turn and restore contents.
	if !ClaimPage(ft, p1) {
		t.Fatal("ClaimPage(p1) after swap-out failed")
	}
	if ft.Pool().Bytes(*p1.Frame)[0] != 0xAB {
		t.Fatal("swapped-in page did not recover its original contents")
	}
}

func TestCopyOnWriteSharesThenSplits(t *testing.T) {
	ft := freshEnv(t, 0, 4, 8)
	parentSPT := NewSupplementalPageTable()
	page := NewAnonPage(0x3000, true)
	parentSPT.Insert(page)
	ClaimPage(ft, page)
	ft.Pool().Bytes(*page.Frame)[0] = 7

	childSPT := NewSupplementalPageTable()
	if !childSPT.Copy(parentSPT) {
		t.Fatal("Copy failed")
	}

	parentPage := parentSPT.Find(0x3000)
	childPage := childSPT.Find(0x3000)
	if parentPage.Writable || childPage.Writable {
		t.Fatal("shared pages should be read-only immediately after fork")
	}
	if *parentPage.Frame != *childPage.Frame {
		t.Fatal("parent and child should share the same frame right after fork")
	}
	if ft.RefCount(*parentPage.Frame) != 2 {
		t.Fatalf("refcount = %d, want 2", ft.RefCount(*parentPage.Frame))
	}

	info := FaultInfo{Addr: 0x3000, User: true, Write: true, NotPresent: false}
	if !HandleFault(childSPT, ft, info) {
		t.Fatal("copy-on-write fault handling failed")
	}
	if *parentPage.Frame == *childPage.Frame {
		t.Fatal("child should have its own frame after a CoW write fault")
	}
	if ft.Pool().Bytes(*childPage.Frame)[0] != 7 {
		t.Fatal("CoW split lost the original page contents")
	}
	if !childPage.Writable {
		t.Fatal("child page should be writable after CoW split")
	}
}

func TestStackGrowthFault(t *testing.T) {
	ft := freshEnv(t, 0, 4, 8)
	spt := NewSupplementalPageTable()

	const userStackTop VA = 0x7FFFFFFF000
	info := FaultInfo{
		Addr:         userStackTop - 16,
		User:         true,
		Write:        true,
		NotPresent:   true,
		StackPtr:     userStackTop - 8,
		UserStackTop: userStackTop,
	}
	if !HandleFault(spt, ft, info) {
		t.Fatal("stack growth fault was not handled")
	}
	if spt.Find(PageRoundDown(info.Addr)) == nil {
		t.Fatal("no page installed after stack growth")
	}
}

func TestStackGrowthBeyondLimitFails(t *testing.T) {
	ft := freshEnv(t, 0, 4, 8)
	spt := NewSupplementalPageTable()

	const userStackTop VA = 0x7FFFFFFF000
	info := FaultInfo{
		Addr:         userStackTop - StackLimit - PageSize,
		User:         true,
		Write:        true,
		NotPresent:   true,
		StackPtr:     userStackTop - StackLimit,
		UserStackTop: userStackTop,
	}
	if HandleFault(spt, ft, info) {
		t.Fatal("fault beyond STACK_LIMIT should not be handled as stack growth")
	}
}

// TestFileBackedPageLazyLoadAndWriteback runs inside a booted scheduler:
// file-backed swap-in and destroy take fsabi.FSLock, which needs a
// current thread.
func TestFileBackedPageLazyLoadAndWriteback(t *testing.T) {
	kthread.Configure(false)
	kthread.Start("main", kthread.PriDefault, func(*kthread.Thread) {
		ft := freshEnv(t, 0, 4, 8)
		fs := fsabi.NewMemFS()
		fs.Create("prog.bin", []byte("hello, mmap!"))
		f, _ := fs.Open("prog.bin")

		spt := NewSupplementalPageTable()
		page := NewFilePage(0x5000, true, FileMapping{File: f, Offset: 0, ReadBytes: 12}, 0x5000, PageSize)
		spt.Insert(page)

		if !ClaimPage(ft, page) {
			t.Fatal("ClaimPage on file-backed page failed")
		}
		buf := ft.Pool().Bytes(*page.Frame)
		if string(buf[:12]) != "hello, mmap!" {
			t.Fatalf("loaded contents = %q", buf[:12])
		}

		buf[0] = 'H'
		ft.Pool().SetDirty(*page.Frame, true)
		page.Ops.Destroy(page)

		f2, _ := fs.Open("prog.bin")
		out := make([]byte, 12)
		f2.ReadAt(out, 0)
		if out[0] != 'H' {
			t.Fatalf("dirty file-backed page was not written back on destroy: %q", out)
		}
	})
}

func TestKindUninitPromotesOnClaim(t *testing.T) {
	ft := freshEnv(t, 0, 2, 4)
	spt := NewSupplementalPageTable()
	page := NewAnonPage(0x9000, true)
	if page.Kind != KindUninit {
		t.Fatal("fresh page should start KindUninit")
	}
	spt.Insert(page)
	ClaimPage(ft, page)
	if page.Kind != KindAnon {
		t.Fatalf("page.Kind = %v after claim, want KindAnon", page.Kind)
	}
}

func TestSupplementalPageTableClearDestroysPages(t *testing.T) {
	ft := freshEnv(t, 0, 4, 8)
	spt := NewSupplementalPageTable()
	page := NewAnonPage(0xA000, true)
	spt.Insert(page)
	ClaimPage(ft, page)
	frame := *page.Frame

	spt.Clear()

	if ft.RefCount(frame) != 0 {
		t.Fatal("frame still tracked after SupplementalPageTable.Clear")
	}
	if len(spt.All()) != 0 {
		t.Fatal("pages remain after Clear")
	}
}
