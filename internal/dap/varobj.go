package dap

import (
	"context"
	"sync"

	"github.com/ctagard/gdbserver-dap/internal/mi"
)

// bindingKey identifies one varobj: the same expression in a different
// frame, thread or stack depth gets its own varobj.
type bindingKey struct {
	Frame  int
	Thread int
	Depth  int
	Name   string
}

type binding struct {
	varobj   string
	value    string
	typ      string
	numChild int
}

// varobjBackend is the subset of the MI facade the cache drives
type varobjBackend interface {
	VarCreate(ctx context.Context, thread, level int, name, expression string) (mi.VarObj, error)
	VarUpdate(ctx context.Context, name string) ([]mi.VarChange, error)
	VarDelete(ctx context.Context, name string) error
}

// varobjCache keeps one gdb varobj per key. The first lookup creates it,
// later lookups only refresh its value.
type varobjCache struct {
	mu       sync.Mutex
	bindings map[bindingKey]*binding
}

func newVarobjCache() *varobjCache {
	return &varobjCache{bindings: make(map[bindingKey]*binding)}
}

// resolve returns the up-to-date binding for key, creating the varobj for
// expression on first use.
func (c *varobjCache) resolve(ctx context.Context, backend varobjBackend, key bindingKey, expression string) (binding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.bindings[key]; ok {
		fresh, err := c.refresh(ctx, backend, b)
		if err == nil && fresh {
			return *b, nil
		}
		// out of scope or gone on the gdb side
		_ = backend.VarDelete(ctx, b.varobj)
		delete(c.bindings, key)
	}

	v, err := backend.VarCreate(ctx, key.Thread, key.Frame, "", expression)
	if err != nil {
		return binding{}, err
	}
	b := &binding{varobj: v.Name, value: v.Value, typ: v.Type, numChild: v.NumChild}
	c.bindings[key] = b
	return *b, nil
}

// refresh updates b from -var-update. It reports false when the varobj
// can no longer be used.
func (c *varobjCache) refresh(ctx context.Context, backend varobjBackend, b *binding) (bool, error) {
	changes, err := backend.VarUpdate(ctx, b.varobj)
	if err != nil {
		return false, err
	}
	for _, ch := range changes {
		if ch.Name != b.varobj {
			continue
		}
		if ch.InScope == "false" || ch.InScope == "invalid" {
			return false, nil
		}
		b.value = ch.Value
		if ch.TypeChanged {
			b.typ = ch.NewType
			b.numChild = ch.NewNumChild
		}
	}
	return true, nil
}

// len returns the number of live bindings
func (c *varobjCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bindings)
}

// clear forgets every binding; the varobjs die with gdb
func (c *varobjCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = make(map[bindingKey]*binding)
}
