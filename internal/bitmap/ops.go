package bitmap

import (
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
)

// And intersects b with other in place.
func (b *Bitmap) And(other *Bitmap) error {
	return b.combine("and", other, func(x, y uint64) uint64 { return x & y })
}

// Or unions other into b in place.
func (b *Bitmap) Or(other *Bitmap) error {
	return b.combine("or", other, func(x, y uint64) uint64 { return x | y })
}

// AndNot clears in b every bit set in other.
func (b *Bitmap) AndNot(other *Bitmap) error {
	return b.combine("andnot", other, func(x, y uint64) uint64 { return x &^ y })
}

// Not flips every bit within the logical length.
func (b *Bitmap) Not() {
	for i := range b.blocks {
		switch b.blocks[i].kind {
		case zeros:
			b.blocks[i].kind = ones
		case ones:
			b.blocks[i].kind = zeros
		case literal:
			for j, w := range b.blocks[i].words {
				b.blocks[i].words[j] = ^w
			}
		}
	}
	b.clearTail()
}

// combine walks both block lists in lockstep. Two fills produce a fill for
// their common span without touching individual words; anything involving a
// literal is combined word by word.
func (b *Bitmap) combine(name string, other *Bitmap, op func(x, y uint64) uint64) error {
	if b.length != other.length {
		return fmt.Errorf("bitmap: %s of lengths %d and %d: %w", name, b.length, other.length, apperrors.ErrLengthMismatch)
	}
	ca, cb := cursor{blocks: b.blocks}, cursor{blocks: other.blocks}
	var out appender
	for !ca.done() && !cb.done() {
		ka, kb := ca.kind(), cb.kind()
		if ka != literal && kb != literal {
			n := min(ca.remaining(), cb.remaining())
			out.fill(fillKind(op(ka.fillWord(), kb.fillWord())), n)
			ca.advance(n)
			cb.advance(n)
			continue
		}
		out.word(op(ca.word(), cb.word()))
		ca.advance(1)
		cb.advance(1)
	}
	b.blocks = out.blocks
	return nil
}

func fillKind(w uint64) blockKind {
	if w == math.MaxUint64 {
		return ones
	}
	return zeros
}

type cursor struct {
	blocks []block
	i      int
	off    uint64
}

func (c *cursor) done() bool {
	return c.i >= len(c.blocks)
}

func (c *cursor) kind() blockKind {
	return c.blocks[c.i].kind
}

func (c *cursor) remaining() uint64 {
	return c.blocks[c.i].n - c.off
}

func (c *cursor) word() uint64 {
	blk := &c.blocks[c.i]
	if blk.kind == literal {
		return blk.words[c.off]
	}
	return blk.kind.fillWord()
}

func (c *cursor) advance(n uint64) {
	c.off += n
	if c.off == c.blocks[c.i].n {
		c.i++
		c.off = 0
	}
}

// appender builds a normalised block list: all-zero and all-one words become
// fills and neighbouring blocks of one kind are merged.
type appender struct {
	blocks []block
}

func (a *appender) fill(kind blockKind, n uint64) {
	if n == 0 {
		return
	}
	if last := len(a.blocks) - 1; last >= 0 && a.blocks[last].kind == kind {
		a.blocks[last].n += n
		return
	}
	a.blocks = append(a.blocks, block{kind: kind, n: n})
}

func (a *appender) word(w uint64) {
	if w == 0 || w == math.MaxUint64 {
		a.fill(fillKind(w), 1)
		return
	}
	if last := len(a.blocks) - 1; last >= 0 && a.blocks[last].kind == literal {
		a.blocks[last].words = append(a.blocks[last].words, w)
		a.blocks[last].n++
		return
	}
	a.blocks = append(a.blocks, block{kind: literal, n: 1, words: []uint64{w}})
}
