package dap

import (
	"fmt"
	"sync"
)

// Variable reference layout visible to DAP clients:
//
//	0x000000FE          globals
//	0x010000..0x01FFFF  statics of frame N, encoded as 0x010000+N
//	0x020000..          locals and expandable values, allocated sequentially
//
// Frame ids run from 1 to maxFrameID, so a stop can expose at most 0xFFFF
// frames. The numbering is restarted whenever the target resumes.
const (
	GlobalHandle = 0xFE
	staticBase   = 0x010000
	staticLimit  = 0x01FFFF
	dynamicBase  = 0x020000
	maxFrameID   = staticLimit - staticBase
)

// HandleKind says what a variables reference points at
type HandleKind int

const (
	HandleGlobal HandleKind = iota
	HandleStatic
	HandleFrame
	HandleObject
)

func (k HandleKind) String() string {
	switch k {
	case HandleGlobal:
		return "global"
	case HandleStatic:
		return "static"
	case HandleFrame:
		return "frame"
	case HandleObject:
		return "object"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FrameReference identifies a frame of the current stop
type FrameReference struct {
	ThreadID int
	Level    int
}

// Handle is the target of a variables reference
type Handle struct {
	Kind HandleKind
	// FrameID is the DAP frame id for static and frame handles
	FrameID int
	Frame   FrameReference
	// Object is the gdb varobj name of an expandable value
	Object string
}

// handleTable maps DAP frame ids and variables references to what they
// denote. Entries die when the target resumes; sequential references are
// never handed out twice in a session.
type handleTable struct {
	mu         sync.Mutex
	frames     map[int]FrameReference
	nextFrame  int
	handles    map[int]Handle
	nextHandle int
}

func newHandleTable() *handleTable {
	return &handleTable{
		frames:     make(map[int]FrameReference),
		nextFrame:  1,
		handles:    make(map[int]Handle),
		nextHandle: dynamicBase,
	}
}

// newFrame allocates a frame id for ref
func (t *handleTable) newFrame(ref FrameReference) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nextFrame > maxFrameID {
		return 0, fmt.Errorf("more than %d stack frames in one stop", maxFrameID)
	}
	id := t.nextFrame
	t.nextFrame++
	t.frames[id] = ref
	return id, nil
}

// frame resolves a frame id
func (t *handleTable) frame(id int) (FrameReference, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, ok := t.frames[id]
	return ref, ok
}

// localsHandle allocates a reference to the locals of frame id
func (t *handleTable) localsHandle(frameID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocate(Handle{Kind: HandleFrame, FrameID: frameID, Frame: t.frames[frameID]})
}

// staticHandle returns the reserved reference to the statics of frame id
func (t *handleTable) staticHandle(frameID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref := staticBase + frameID
	t.handles[ref] = Handle{Kind: HandleStatic, FrameID: frameID, Frame: t.frames[frameID]}
	return ref
}

// objectHandle allocates a reference to the children of a varobj
func (t *handleTable) objectHandle(varobj string, frame FrameReference) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocate(Handle{Kind: HandleObject, Object: varobj, Frame: frame})
}

func (t *handleTable) allocate(h Handle) int {
	ref := t.nextHandle
	t.nextHandle++
	t.handles[ref] = h
	return ref
}

// lookup resolves a variables reference. The global reference is always valid.
func (t *handleTable) lookup(ref int) (Handle, bool) {
	if ref == GlobalHandle {
		return Handle{Kind: HandleGlobal}, true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[ref]
	return h, ok
}

// reset forgets all frames and references after the target resumed
func (t *handleTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = make(map[int]FrameReference)
	t.nextFrame = 1
	t.handles = make(map[int]Handle)
}
