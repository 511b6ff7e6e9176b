package gdbserver

import (
	"bytes"
	"sync"

	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// progressCounter estimates download progress by counting marker bytes in
// the server's stdout. The server prints a fixed number of markers for a
// full download, so the tally is an approximation, not a byte count.
type progressCounter struct {
	marker byte
	total  int

	mu      sync.Mutex
	count   int
	percent float64
	publish func(types.Progress)
}

func newProgressCounter(marker byte, total int, publish func(types.Progress)) *progressCounter {
	return &progressCounter{marker: marker, total: total, publish: publish}
}

// Reset starts a new tally
func (p *progressCounter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = 0
	p.percent = 0
}

// Feed counts markers in a stdout chunk and publishes when the percentage changes
func (p *progressCounter) Feed(chunk []byte) {
	if p.total <= 0 {
		return
	}
	n := bytes.Count(chunk, []byte{p.marker})
	if n == 0 {
		return
	}

	p.mu.Lock()
	p.count += n
	percent := float64(p.count) * 100 / float64(p.total)
	if percent > 100 {
		percent = 100
	}
	changed := percent != p.percent
	p.percent = percent
	p.mu.Unlock()

	if changed && p.publish != nil {
		p.publish(types.Progress{Percent: percent, Message: "Flashing"})
	}
}

// Percent returns the current estimate
func (p *progressCounter) Percent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}
