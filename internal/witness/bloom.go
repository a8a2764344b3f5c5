package witness

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// SeenSet is the probabilistic seen-coins membership structure: a Bloom
// filter sized for 10^7 elements at 15 hash functions, targeting a
// false-positive rate below 0.01%. It is add-only within the life of an
// agent and never reports false negatives.
type SeenSet struct {
	bits   *bitset.BitSet
	m      uint
	hashes uint
}

// Default sizing allocates about 192 million bits (roughly 23 MiB) for
// ten million inserted ids; at 15 hash functions that gives a
// false-positive rate of about 1.04*10^-4.
const (
	DefaultBloomItems         = 10_000_000
	DefaultBloomFalsePositive = 0.0001
	DefaultBloomHashes        = 15
)

// NewSeenSet builds a Bloom filter sized for expectedItems at the given
// false-positive target. hashCount pins the number of hash functions
// used per insertion/lookup.
func NewSeenSet(expectedItems uint, falsePositive float64, hashCount uint) *SeenSet {
	if expectedItems == 0 {
		expectedItems = DefaultBloomItems
	}
	if falsePositive <= 0 {
		falsePositive = DefaultBloomFalsePositive
	}
	if hashCount == 0 {
		hashCount = DefaultBloomHashes
	}
	m := optimalBits(expectedItems, falsePositive)
	return &SeenSet{bits: bitset.New(m), m: m, hashes: hashCount}
}

func optimalBits(n uint, p float64) uint {
	m := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	if m < 64 {
		m = 64
	}
	return uint(m)
}

// indices implements double hashing (Kirsch-Mitzenmacher): two
// independent base hashes combine to derive `hashes` index positions
// without running `hashes` separate hash functions.
func (s *SeenSet) indices(id string) []uint {
	h1 := fnv.New64a()
	h1.Write([]byte(id))
	sum1 := h1.Sum64()

	h2 := fnv.New64()
	h2.Write([]byte(id))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], sum1)
	h2.Write(buf[:])
	sum2 := h2.Sum64()

	idx := make([]uint, s.hashes)
	for i := uint(0); i < s.hashes; i++ {
		combined := sum1 + uint64(i)*sum2
		idx[i] = uint(combined % uint64(s.m))
	}
	return idx
}

// Add records id as seen.
func (s *SeenSet) Add(id string) {
	for _, i := range s.indices(id) {
		s.bits.Set(i)
	}
}

// Contains reports whether id may have been seen before. False positives
// are possible; false negatives are not.
func (s *SeenSet) Contains(id string) bool {
	for _, i := range s.indices(id) {
		if !s.bits.Test(i) {
			return false
		}
	}
	return true
}

// MarshalBinary snapshots the underlying bit array, for the "filter"
// field of a persisted agent state.
func (s *SeenSet) MarshalBinary() ([]byte, error) {
	return s.bits.MarshalBinary()
}

// UnmarshalBinary restores a previously marshaled bit array into an
// already-sized SeenSet (m/hashes must already match the original).
func (s *SeenSet) UnmarshalBinary(data []byte) error {
	return s.bits.UnmarshalBinary(data)
}
