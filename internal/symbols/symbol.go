package symbols

import "fmt"

// Kind is the objdump type flag of a symbol
type Kind int

const (
	KindNormal Kind = iota
	KindFunction
	KindFile
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindFile:
		return "file"
	case KindObject:
		return "object"
	default:
		return "normal"
	}
}

// MarshalText renders the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func kindFromFlag(flag byte) Kind {
	switch flag {
	case 'F':
		return KindFunction
	case 'f':
		return KindFile
	case 'O':
		return KindObject
	default:
		return KindNormal
	}
}

// Scope is the objdump linkage flag of a symbol
type Scope int

const (
	ScopeNeither Scope = iota
	ScopeLocal
	ScopeGlobal
	ScopeBoth
)

func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeGlobal:
		return "global"
	case ScopeBoth:
		return "both"
	default:
		return "neither"
	}
}

// MarshalText renders the scope by name
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func scopeFromFlag(flag byte) Scope {
	switch flag {
	case 'l':
		return ScopeLocal
	case 'g':
		return ScopeGlobal
	case '!':
		return ScopeBoth
	default:
		return ScopeNeither
	}
}

// Symbol is one row of a symbol dump
type Symbol struct {
	Address uint64 `json:"address"`
	Length  uint64 `json:"length"`
	Name    string `json:"name"`
	Section string `json:"section"`
	Kind    Kind   `json:"kind"`
	Scope   Scope  `json:"scope"`
	// File is the source file a local symbol belongs to, empty for globals
	File   string `json:"file,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

func (s Symbol) String() string {
	return fmt.Sprintf("%08x %s %s %s %d", s.Address, s.Scope, s.Kind, s.Name, s.Length)
}
