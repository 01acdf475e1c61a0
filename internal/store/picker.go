package store

import (
	cryptorand "crypto/rand"
	"math/rand/v2"
	"sync"
)

// Picker chooses an index in [0, n) for n > 0.
type Picker interface {
	IntN(n int) int
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(n int) int

func (f PickerFunc) IntN(n int) int {
	return f(n)
}

type chachaPicker struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPicker returns a uniform picker backed by a ChaCha8 generator seeded
// from the operating system. It is safe for concurrent use.
func NewPicker() Picker {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		return PickerFunc(rand.IntN)
	}
	return &chachaPicker{rnd: rand.New(rand.NewChaCha8(seed))}
}

func (p *chachaPicker) IntN(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.IntN(n)
}
