// Package symbols parses `objdump --syms` output into a queryable table.
//
// GDB cannot enumerate a target's global and file-static variables on its
// own, so the debug session looks them up here and binds each one to a GDB
// variable object. A table is immutable once built.
package symbols

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path"
	"regexp"
	"strconv"
	"strings"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
)

const hiddenPrefix = ".hidden "

// address, scope, weak, constructor, warning, indirect, debug/dynamic, type,
// section, size, name
var symbolLine = regexp.MustCompile(`^([0-9a-fA-F]+)\s([lg\ !])([w\ ])([C\ ])([W\ ])([I\ ])([dD\ ])([FfO\ ])\s(.*?)\s+([0-9a-fA-F]+)\s(.*)$`)

// Table is a parsed, read-only symbol set. The zero value and a nil *Table
// are both empty tables.
type Table struct {
	symbols []Symbol
}

// Parse reads symbol dump text. Lines that are not symbol rows (headers,
// blank lines) are skipped.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{}
	currentFile := ""

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := symbolLine.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}

		address, err := strconv.ParseUint(m[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad symbol address %q: %w", m[1], err)
		}
		length, err := strconv.ParseUint(m[10], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad symbol size %q: %w", m[10], err)
		}

		sym := Symbol{
			Address: address,
			Length:  length,
			Name:    strings.TrimSpace(m[11]),
			Section: m[9],
			Kind:    kindFromFlag(m[8][0]),
			Scope:   scopeFromFlag(m[2][0]),
		}
		if strings.HasPrefix(sym.Name, hiddenPrefix) {
			sym.Name = strings.TrimPrefix(sym.Name, hiddenPrefix)
			sym.Hidden = true
		}

		if m[7] == "d" && sym.Kind == KindFile {
			currentFile = sym.Name
		}
		if sym.Scope == ScopeLocal {
			sym.File = currentFile
		}

		t.symbols = append(t.symbols, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return t, nil
}

// Load runs `<tool> --syms <binary>` and parses its output. Any text on the
// tool's stderr fails the load.
func Load(ctx context.Context, binary, tool string) (*Table, error) {
	var stdout, stderr bytes.Buffer

	//nolint:gosec // G204: the symbol tool path is operator configuration
	cmd := exec.CommandContext(ctx, tool, "--syms", binary)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return nil, dbgerrors.SymbolLoadFailed(binary, errors.New(msg))
	}
	if runErr != nil {
		return nil, dbgerrors.SymbolLoadFailed(binary, runErr)
	}

	t, err := Parse(&stdout)
	if err != nil {
		return nil, dbgerrors.SymbolLoadFailed(binary, err)
	}
	return t, nil
}

// Len returns the number of symbols
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.symbols)
}

// Symbols returns a copy of every parsed symbol in dump order
func (t *Table) Symbols() []Symbol {
	if t == nil {
		return nil
	}
	out := make([]Symbol, len(t.symbols))
	copy(out, t.symbols)
	return out
}

// GlobalVariables returns global data objects
func (t *Table) GlobalVariables() []Symbol {
	return t.filter(func(s Symbol) bool {
		return s.Kind == KindObject && s.Scope == ScopeGlobal
	})
}

// StaticVariables returns the file-local data objects of file. file may be
// a full path or just a base name, as GDB reports either depending on how
// the binary was built.
func (t *Table) StaticVariables(file string) []Symbol {
	if file == "" {
		return nil
	}
	want := baseName(file)
	return t.filter(func(s Symbol) bool {
		if s.Kind != KindObject || s.Scope != ScopeLocal || strings.HasPrefix(s.Name, ".") {
			return false
		}
		return s.File == file || baseName(s.File) == want
	})
}

// FunctionByName returns the first function symbol called name
func (t *Table) FunctionByName(name string) (Symbol, bool) {
	if t == nil {
		return Symbol{}, false
	}
	for _, s := range t.symbols {
		if s.Kind == KindFunction && s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

func (t *Table) filter(keep func(Symbol) bool) []Symbol {
	if t == nil {
		return nil
	}
	var out []Symbol
	for _, s := range t.symbols {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func baseName(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(p, `\`, "/"))
}
