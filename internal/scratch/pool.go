package scratch

import (
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
)

// Scratch is the working state one query borrows for its whole evaluation.
type Scratch struct {
	// Excluded holds positions removed by the exclusion set.
	Excluded *PositionSet
	// Set is the operand set used by set-algebra strategies.
	Set   *PositionSet
	Bloom *bloom.Filter
	// Buf collects result positions before the page window is cut.
	Buf []document.Position
}

func (s *Scratch) reset() {
	s.Excluded.Clear()
	s.Set.Clear()
	if s.Bloom.Added() > 0 {
		s.Bloom.Clear()
	}
	s.Buf = s.Buf[:0]
}

// Sizes pre-sizes each pooled scratch. Exclusions can name any document,
// so Excluded is sized by the corpus, while Set only ever holds one posting
// list.
type Sizes struct {
	Excluded  int
	Set       int
	BloomBits uint64
}

// Pool recycles Scratch values sized for one index. Every Get must be paired
// with a Put once the borrower has stopped touching the scratch; a scratch
// is never handed to two borrowers at once.
type Pool struct {
	pool      sync.Pool
	sizes     Sizes
	allocated atomic.Int64
}

func NewPool(sizes Sizes) *Pool {
	p := &Pool{sizes: sizes}
	p.pool.New = func() any {
		p.allocated.Add(1)
		return &Scratch{
			Excluded: WithCapacity(p.sizes.Excluded),
			Set:      WithCapacity(p.sizes.Set),
			Bloom:    bloom.New(p.sizes.BloomBits),
			Buf:      make([]document.Position, 0, 256),
		}
	}
	return p
}

// Get returns a cleared scratch.
func (p *Pool) Get() *Scratch {
	return p.pool.Get().(*Scratch)
}

// Put clears s and returns it to the pool. Oversized result buffers are
// dropped so one huge query does not pin memory in every pooled scratch.
func (p *Pool) Put(s *Scratch) {
	s.reset()
	if cap(s.Buf) > 4*max(p.sizes.Set, 256) {
		s.Buf = make([]document.Position, 0, 256)
	}
	p.pool.Put(s)
}

// Allocated reports how many scratches the pool has ever constructed.
func (p *Pool) Allocated() int64 {
	return p.allocated.Load()
}

// Sizes returns the capacities pooled scratches are created with.
func (p *Pool) Sizes() Sizes {
	return p.sizes
}
