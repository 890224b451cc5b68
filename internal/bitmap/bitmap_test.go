package bitmap

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
)

func collect(b *Bitmap, skip, take uint64) []uint64 {
	out := []uint64{}
	for p := range b.Positions(skip, take) {
		out = append(out, p)
	}
	return out
}

func oracleSlice(r *roaring.Bitmap) []uint64 {
	out := []uint64{}
	it := r.Iterator()
	for it.HasNext() {
		out = append(out, uint64(it.Next()))
	}
	return out
}

// randomPair fills a Bitmap and a roaring oracle with the same bits. density
// picks between sparse, dense and clustered layouts so fills and literals are
// both exercised.
func randomPair(t *testing.T, rng *rand.Rand, length uint64, density int) (*Bitmap, *roaring.Bitmap) {
	t.Helper()
	b := New(length)
	r := roaring.New()
	for i := uint64(0); i < length; i++ {
		var on bool
		switch density {
		case 0:
			on = rng.IntN(50) == 0
		case 1:
			on = rng.IntN(50) != 0
		default:
			on = (i/200)%2 == 0 || rng.IntN(10) == 0
		}
		if on {
			require.NoError(t, b.Set(i))
			r.Add(uint32(i))
		}
	}
	return b, r
}

func TestNewIsEmpty(t *testing.T) {
	b := New(130)
	assert.Equal(t, uint64(130), b.Len())
	assert.Zero(t, b.Cardinality())
	assert.Empty(t, collect(b, 0, 10))

	empty := New(0)
	assert.Zero(t, empty.Cardinality())
	assert.Empty(t, collect(empty, 0, 10))
}

func TestSetAndIsSet(t *testing.T) {
	b := New(200)
	for _, i := range []uint64{0, 63, 64, 130, 199} {
		require.NoError(t, b.Set(i))
	}
	for _, i := range []uint64{0, 63, 64, 130, 199} {
		set, err := b.IsSet(i)
		require.NoError(t, err)
		assert.True(t, set, "bit %d", i)
	}
	set, err := b.IsSet(1)
	require.NoError(t, err)
	assert.False(t, set)
	assert.Equal(t, uint64(5), b.Cardinality())
	assert.Equal(t, []uint64{0, 63, 64, 130, 199}, collect(b, 0, 100))

	// setting an already-set bit is idempotent
	require.NoError(t, b.Set(64))
	assert.Equal(t, uint64(5), b.Cardinality())
}

func TestOutOfRange(t *testing.T) {
	b := New(10)
	assert.ErrorIs(t, b.Set(10), apperrors.ErrIndexOutOfRange)
	_, err := b.IsSet(64)
	assert.ErrorIs(t, err, apperrors.ErrIndexOutOfRange)
}

func TestLengthMismatch(t *testing.T) {
	a, b := New(10), New(11)
	assert.ErrorIs(t, a.And(b), apperrors.ErrLengthMismatch)
	assert.ErrorIs(t, a.Or(b), apperrors.ErrLengthMismatch)
	assert.ErrorIs(t, a.AndNot(b), apperrors.ErrLengthMismatch)
}

func TestNotMasksTail(t *testing.T) {
	b := New(70)
	require.NoError(t, b.Set(3))
	b.Not()
	assert.Equal(t, uint64(69), b.Cardinality())
	set, err := b.IsSet(3)
	require.NoError(t, err)
	assert.False(t, set)
	// 0,1,2 then 4..69; the 61st set bit onwards
	assert.Equal(t, []uint64{61, 62, 63, 64, 65, 66, 67, 68, 69}, collect(b, 60, 100))
}

func TestPositionsSkipTake(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for density := 0; density < 3; density++ {
		b, r := randomPair(t, rng, 3000, density)
		all := oracleSlice(r)
		windows := [][2]uint64{{0, 10}, {5, 50}, {uint64(len(all)) - 3, 10}, {uint64(len(all)), 5}, {0, 0}, {100, 1}}
		for _, w := range windows {
			t.Run(fmt.Sprintf("d%d/skip%d/take%d", density, w[0], w[1]), func(t *testing.T) {
				lo := min(int(w[0]), len(all))
				hi := min(lo+int(w[1]), len(all))
				assert.Equal(t, all[lo:hi], collect(b, w[0], w[1]))
			})
		}
		// restartable: a second call decodes the same sequence
		assert.Equal(t, collect(b, 3, 20), collect(b, 3, 20))
	}
}

func TestPositionsEarlyBreak(t *testing.T) {
	b := New(1000)
	b.SetLogicalLength(0, false)
	b.SetLogicalLength(1000, true)
	var seen []uint64
	for p := range b.All() {
		seen = append(seen, p)
		if len(seen) == 3 {
			break
		}
	}
	assert.Equal(t, []uint64{0, 1, 2}, seen)
}

func TestOpsAgainstRoaring(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	lengths := []uint64{1, 63, 64, 65, 1000, 4097}
	for _, length := range lengths {
		for da := 0; da < 3; da++ {
			for db := 0; db < 3; db++ {
				name := fmt.Sprintf("len%d/a%d/b%d", length, da, db)
				t.Run(name, func(t *testing.T) {
					a, ra := randomPair(t, rng, length, da)
					b, rb := randomPair(t, rng, length, db)

					and := a.Clone()
					require.NoError(t, and.And(b))
					assert.Equal(t, oracleSlice(roaring.And(ra, rb)), collect(and, 0, length))

					or := a.Clone()
					require.NoError(t, or.Or(b))
					assert.Equal(t, oracleSlice(roaring.Or(ra, rb)), collect(or, 0, length))
					assert.Equal(t, roaring.Or(ra, rb).GetCardinality(), or.Cardinality())

					andNot := a.Clone()
					require.NoError(t, andNot.AndNot(b))
					assert.Equal(t, oracleSlice(roaring.AndNot(ra, rb)), collect(andNot, 0, length))

					not := a.Clone()
					not.Not()
					flipped := ra.Clone()
					flipped.Flip(0, length)
					assert.Equal(t, oracleSlice(flipped), collect(not, 0, length))
					assert.Equal(t, flipped.GetCardinality(), not.Cardinality())

					// operands are untouched
					assert.Equal(t, oracleSlice(ra), collect(a, 0, length))
					assert.Equal(t, oracleSlice(rb), collect(b, 0, length))
				})
			}
		}
	}
}

func TestSetLogicalLength(t *testing.T) {
	b := New(100)
	for _, i := range []uint64{1, 50, 99} {
		require.NoError(t, b.Set(i))
	}

	b.SetLogicalLength(60, false)
	assert.Equal(t, uint64(60), b.Len())
	assert.Equal(t, []uint64{1, 50}, collect(b, 0, 100))

	// truncated bits stay gone when the vector grows again
	b.SetLogicalLength(100, false)
	assert.Equal(t, []uint64{1, 50}, collect(b, 0, 100))

	b.SetLogicalLength(130, true)
	got := collect(b, 0, 1000)
	assert.Len(t, got, 2+30)
	assert.Equal(t, uint64(100), got[2])
	assert.Equal(t, uint64(129), got[len(got)-1])
	assert.Equal(t, uint64(32), b.Cardinality())

	b.SetLogicalLength(0, false)
	assert.Zero(t, b.Cardinality())
	b.SetLogicalLength(5, true)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, collect(b, 0, 10))
}

func TestShrinkPreservesSemantics(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	b, r := randomPair(t, rng, 5000, 2)
	before := collect(b, 0, 5000)
	blocksBefore, _ := b.Blocks()

	b.Shrink()
	assert.Equal(t, before, collect(b, 0, 5000))
	assert.Equal(t, r.GetCardinality(), b.Cardinality())
	blocksAfter, _ := b.Blocks()
	assert.LessOrEqual(t, blocksAfter, blocksBefore)
}

func TestShrinkCompressesDenseRuns(t *testing.T) {
	b := New(64 * 100)
	for i := uint64(0); i < 64*100; i++ {
		require.NoError(t, b.Set(i))
	}
	b.Shrink()
	blocks, literals := b.Blocks()
	assert.Equal(t, 1, blocks)
	assert.Zero(t, literals)
	assert.Equal(t, uint64(6400), b.Cardinality())
}

func TestRandomSetOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	const length = 2500
	b := New(length)
	r := roaring.New()
	perm := rng.Perm(length)
	for _, p := range perm[:900] {
		require.NoError(t, b.Set(uint64(p)))
		r.Add(uint32(p))
	}
	assert.Equal(t, oracleSlice(r), collect(b, 0, length))
	want := slices.Clone(oracleSlice(r))
	b.Shrink()
	assert.Equal(t, want, collect(b, 0, length))
}
