// Package bitmap implements a run-compressed bit vector. The vector is a
// sequence of blocks, each spanning a whole number of 64-bit words and being
// either an all-zero fill, an all-one fill, or a run of materialised literal
// words. Tags that cover almost none or almost all of the corpus collapse to
// a handful of fills.
//
// Semantics are exactly those of an uncompressed vector of Len() bits: bits
// at or beyond the logical length are always zero, so cardinality and
// decoding never need masking.
//
//	blocks: [zeros n=120] [literal n=3: w0 w1 w2] [ones n=40] [literal n=1: w3]
//	words:   0..119        120..122               123..162     163
//
// Logical operations walk both block lists with one cursor each; a pair of
// fills is combined for its whole common span, so intersecting a near-empty
// tag with a near-full one costs time proportional to the number of blocks.
package bitmap

import (
	"fmt"
	"iter"
	"math"
	"math/bits"
	"slices"

	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
)

const wordBits = 64

type blockKind uint8

const (
	zeros blockKind = iota
	ones
	literal
)

func (k blockKind) fillWord() uint64 {
	if k == ones {
		return math.MaxUint64
	}
	return 0
}

type block struct {
	kind blockKind
	n    uint64
	// words holds the n literal words of a literal block. Literal words may
	// be 0 or all-ones after in-place sets; Shrink folds those back into
	// fills.
	words []uint64
}

func wordBlock(w uint64) block {
	switch w {
	case 0:
		return block{kind: zeros, n: 1}
	case math.MaxUint64:
		return block{kind: ones, n: 1}
	default:
		return block{kind: literal, n: 1, words: []uint64{w}}
	}
}

func canMerge(a, b block) bool {
	return a.kind == b.kind
}

func wordsFor(length uint64) uint64 {
	return (length + wordBits - 1) / wordBits
}

// Bitmap is a compressed bit vector of fixed logical length. It is not safe
// for concurrent mutation; concurrent readers of an unchanging Bitmap are
// fine.
type Bitmap struct {
	length uint64
	blocks []block
}

// New returns an all-zero bitmap of the given logical length.
func New(length uint64) *Bitmap {
	b := &Bitmap{length: length}
	if w := wordsFor(length); w > 0 {
		b.blocks = []block{{kind: zeros, n: w}}
	}
	return b
}

// Len returns the logical number of bits.
func (b *Bitmap) Len() uint64 {
	return b.length
}

// Clone returns a deep copy.
func (b *Bitmap) Clone() *Bitmap {
	c := &Bitmap{length: b.length, blocks: make([]block, len(b.blocks))}
	for i, blk := range b.blocks {
		c.blocks[i] = blk
		if blk.kind == literal {
			c.blocks[i].words = slices.Clone(blk.words)
		}
	}
	return c
}

// Set sets the bit at position i.
func (b *Bitmap) Set(i uint64) error {
	if i >= b.length {
		return fmt.Errorf("bitmap: set %d with length %d: %w", i, b.length, apperrors.ErrIndexOutOfRange)
	}
	wi := i / wordBits
	b.setWord(wi, b.wordAt(wi)|1<<(i%wordBits))
	return nil
}

// IsSet reports whether the bit at position i is set.
func (b *Bitmap) IsSet(i uint64) (bool, error) {
	if i >= b.length {
		return false, fmt.Errorf("bitmap: test %d with length %d: %w", i, b.length, apperrors.ErrIndexOutOfRange)
	}
	return b.wordAt(i/wordBits)&(1<<(i%wordBits)) != 0, nil
}

// Cardinality counts set bits. Fills contribute without being expanded.
func (b *Bitmap) Cardinality() uint64 {
	var n uint64
	for _, blk := range b.blocks {
		switch blk.kind {
		case ones:
			n += blk.n * wordBits
		case literal:
			for _, w := range blk.words {
				n += uint64(bits.OnesCount64(w))
			}
		}
	}
	return n
}

// SetLogicalLength truncates or extends the vector to n bits. Bits added by
// an extension take defaultBit; bits dropped by a truncation are gone, so a
// later extension does not resurrect them.
func (b *Bitmap) SetLogicalLength(n uint64, defaultBit bool) {
	if n == b.length {
		return
	}
	oldWords, newWords := wordsFor(b.length), wordsFor(n)
	if n < b.length {
		b.truncateWords(newWords)
		b.length = n
		b.clearTail()
		return
	}
	if defaultBit {
		if r := b.length % wordBits; r != 0 {
			last := oldWords - 1
			b.setWord(last, b.wordAt(last)|^(uint64(1)<<r-1))
		}
		b.appendFill(ones, newWords-oldWords)
	} else {
		b.appendFill(zeros, newWords-oldWords)
	}
	b.length = n
	b.clearTail()
}

// Shrink folds literal words that became all-zero or all-one back into fills,
// merges neighbouring blocks of the same kind, and trims every backing slice
// to its length.
func (b *Bitmap) Shrink() {
	var a appender
	for _, blk := range b.blocks {
		if blk.kind == literal {
			for _, w := range blk.words {
				a.word(w)
			}
			continue
		}
		a.fill(blk.kind, blk.n)
	}
	out := make([]block, len(a.blocks))
	for i, blk := range a.blocks {
		if blk.kind == literal {
			blk.words = slices.Clip(blk.words)
		}
		out[i] = blk
	}
	b.blocks = out
}

// Blocks returns the number of blocks and how many literal words they hold.
func (b *Bitmap) Blocks() (blocks int, literalWords uint64) {
	for _, blk := range b.blocks {
		if blk.kind == literal {
			literalWords += blk.n
		}
	}
	return len(b.blocks), literalWords
}

// Positions yields set-bit indices in ascending order, skipping the first
// skip matches and yielding at most take. Each call decodes from the start.
func (b *Bitmap) Positions(skip, take uint64) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		if take == 0 {
			return
		}
		var base uint64
		for _, blk := range b.blocks {
			switch blk.kind {
			case ones:
				span := blk.n * wordBits
				if skip >= span {
					skip -= span
					break
				}
				for i := base + skip; i < base+span; i++ {
					if !yield(i) {
						return
					}
					if take--; take == 0 {
						return
					}
				}
				skip = 0
			case literal:
				for j, w := range blk.words {
					if c := uint64(bits.OnesCount64(w)); skip >= c {
						skip -= c
						continue
					}
					wordBase := base + uint64(j)*wordBits
					for w != 0 {
						tz := uint64(bits.TrailingZeros64(w))
						w &= w - 1
						if skip > 0 {
							skip--
							continue
						}
						if !yield(wordBase + tz) {
							return
						}
						if take--; take == 0 {
							return
						}
					}
				}
			}
			base += blk.n * wordBits
		}
	}
}

// All yields every set-bit index in ascending order.
func (b *Bitmap) All() iter.Seq[uint64] {
	return b.Positions(0, math.MaxUint64)
}

func (b *Bitmap) wordAt(wi uint64) uint64 {
	bi, start := b.locate(wi)
	blk := &b.blocks[bi]
	if blk.kind == literal {
		return blk.words[wi-start]
	}
	return blk.kind.fillWord()
}

// setWord overwrites word wi. Literal blocks are patched in place; a fill is
// split around the word and the result merged with its neighbours, so
// ascending sets grow a single literal run instead of one block per word.
func (b *Bitmap) setWord(wi, v uint64) {
	bi, start := b.locate(wi)
	blk := b.blocks[bi]
	o := wi - start
	if blk.kind == literal {
		b.blocks[bi].words[o] = v
		return
	}
	if v == blk.kind.fillWord() {
		return
	}
	repl := make([]block, 0, 3)
	if o > 0 {
		repl = append(repl, block{kind: blk.kind, n: o})
	}
	repl = append(repl, wordBlock(v))
	if rest := blk.n - o - 1; rest > 0 {
		repl = append(repl, block{kind: blk.kind, n: rest})
	}
	b.blocks = slices.Replace(b.blocks, bi, bi+1, repl...)
	mid := bi
	if o > 0 {
		mid++
	}
	b.mergeAround(mid)
}

func (b *Bitmap) mergeAround(i int) {
	if i+1 < len(b.blocks) && canMerge(b.blocks[i], b.blocks[i+1]) {
		b.blocks[i].n += b.blocks[i+1].n
		if b.blocks[i].kind == literal {
			b.blocks[i].words = append(b.blocks[i].words, b.blocks[i+1].words...)
		}
		b.blocks = slices.Delete(b.blocks, i+1, i+2)
	}
	if i > 0 && canMerge(b.blocks[i-1], b.blocks[i]) {
		b.blocks[i-1].n += b.blocks[i].n
		if b.blocks[i-1].kind == literal {
			b.blocks[i-1].words = append(b.blocks[i-1].words, b.blocks[i].words...)
		}
		b.blocks = slices.Delete(b.blocks, i, i+1)
	}
}

// locate returns the block holding word wi and the word index the block
// starts at. The last two blocks are checked first so ascending builds,
// which always write at the tail, stay constant-time; otherwise the scan
// starts from whichever end is closer.
func (b *Bitmap) locate(wi uint64) (int, uint64) {
	total := wordsFor(b.length)
	start := total
	for i := len(b.blocks) - 1; i >= 0 && i >= len(b.blocks)-2; i-- {
		start -= b.blocks[i].n
		if wi >= start {
			return i, start
		}
	}
	if wi >= total/2 {
		start = total
		for i := len(b.blocks) - 1; i >= 0; i-- {
			start -= b.blocks[i].n
			if wi >= start {
				return i, start
			}
		}
	}
	start = 0
	for i := range b.blocks {
		if wi < start+b.blocks[i].n {
			return i, start
		}
		start += b.blocks[i].n
	}
	panic(fmt.Sprintf("bitmap: word %d beyond %d words", wi, total))
}

func (b *Bitmap) appendFill(kind blockKind, n uint64) {
	if n == 0 {
		return
	}
	if last := len(b.blocks) - 1; last >= 0 && b.blocks[last].kind == kind {
		b.blocks[last].n += n
		return
	}
	b.blocks = append(b.blocks, block{kind: kind, n: n})
}

func (b *Bitmap) truncateWords(keep uint64) {
	var start uint64
	for i := range b.blocks {
		end := start + b.blocks[i].n
		if end >= keep {
			n := keep - start
			if n == 0 {
				b.blocks = b.blocks[:i]
				return
			}
			b.blocks[i].n = n
			if b.blocks[i].kind == literal {
				b.blocks[i].words = b.blocks[i].words[:n]
			}
			b.blocks = b.blocks[:i+1]
			return
		}
		start = end
	}
}

// clearTail zeroes the bits of the last word that lie beyond the length.
func (b *Bitmap) clearTail() {
	r := b.length % wordBits
	if r == 0 {
		return
	}
	last := wordsFor(b.length) - 1
	b.setWord(last, b.wordAt(last)&(uint64(1)<<r-1))
}
