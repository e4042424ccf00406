package vm

// page.go implements the Page component (C1): a 4 KiB frame of guest memory with attribute
// flags, copy-on-write sharing, and an optional trap callback, grounded on the teacher's
// MMIO/device-table indirection (mem.go) generalized from "one device per address" to "one
// interceptor per page."

const (
	// PageSize is the size, in bytes, of one page frame.
	PageSize = 4096

	// PageShift is log2(PageSize); addr>>PageShift is the page index.
	PageShift = 12

	pageOffsetMask = PageSize - 1
)

// Attr is a bitset of page access permissions.
type Attr uint8

const (
	AttrRead Attr = 1 << iota
	AttrWrite
	AttrExec
)

func (a Attr) String() string {
	r, w, x := "-", "-", "-"
	if a&AttrRead != 0 {
		r = "r"
	}

	if a&AttrWrite != 0 {
		w = "w"
	}

	if a&AttrExec != 0 {
		x = "x"
	}

	return r + w + x
}

// trapFn intercepts an access to a page. onRead may observe the bytes about to be returned;
// onWrite may substitute the bytes about to be written, returning the value that is actually
// stored.
type trapFn struct {
	onRead  func(addr Word, val []byte)
	onWrite func(addr Word, val []byte) []byte
}

// page is one 4 KiB frame of guest-addressable memory.
type page struct {
	data *[PageSize]byte

	attr       Attr
	cow        bool // copy-on-write: reads come from data, a write must copy first.
	nonOwning  bool // data belongs to another owner (e.g. the shared zero page).
	isZeroPage bool

	trap *trapFn
}

// zeroPage is the process-wide, shared, read-only backing for pages that have never been
// written. It is never mutated; a write fault against it always resolves to a private copy
// first.
var zeroPage = &[PageSize]byte{}

// newZeroPage creates a page backed by the shared zero page, carrying exactly the attributes the
// caller grants and copy-on-write whenever those include write (e.g. a BSS page is writable
// copy-on-write; an unmapped guard page has no attributes at all and must never be reachable by
// read/write/execute).
func newZeroPage(attr Attr) *page {
	return &page{
		data:       zeroPage,
		attr:       attr,
		cow:        attr&AttrWrite != 0,
		nonOwning:  true,
		isZeroPage: true,
	}
}

// newPage allocates a private, zero-filled page with the given attributes.
func newPage(attr Attr) *page {
	return &page{
		data: new([PageSize]byte),
		attr: attr,
	}
}

// resolveWrite returns a page safe to mutate in place, materializing a private copy if the
// receiver is copy-on-write or shares another owner's backing store.
func (p *page) resolveWrite() *page {
	if !p.cow && !p.nonOwning {
		return p
	}

	cp := &page{
		data: new([PageSize]byte),
		attr: p.attr,
	}
	copy(cp.data[:], p.data[:])

	return cp
}
