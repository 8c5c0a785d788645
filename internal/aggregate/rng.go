package aggregate

import (
	"crypto/rand"
	"encoding/binary"
)

// rng is a xoshiro256++ stream. The 256-bit state is seeded from the OS
// entropy source once at construction; after that an output costs a few
// shifts and adds, so picking window representatives under load never
// touches the kernel RNG again.
type rng struct {
	s [4]uint64

	// spare holds the unused high half of the last 64-bit output.
	spare    uint32
	hasSpare bool
}

func newRNG() *rng {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic("aggregate: entropy source unavailable: " + err.Error())
	}
	var r rng
	for i := range r.s {
		r.s[i] = binary.LittleEndian.Uint64(seed[8*i:])
	}
	// The all-zero state is a fixed point of the recurrence.
	if r.s[0]|r.s[1]|r.s[2]|r.s[3] == 0 {
		r.s[0] = 0x9e3779b97f4a7c15
	}
	return &r
}

func rotl(x uint64, k uint) uint64 { return x<<k | x>>(64-k) }

func (r *rng) next() uint64 {
	result := rotl(r.s[0]+r.s[3], 23) + r.s[0]
	t := r.s[1] << 17
	r.s[2] ^= r.s[0]
	r.s[3] ^= r.s[1]
	r.s[1] ^= r.s[2]
	r.s[0] ^= r.s[3]
	r.s[2] ^= t
	r.s[3] = rotl(r.s[3], 45)
	return result
}

// next32 returns one 32-bit draw. Each 64-bit output serves two calls.
func (r *rng) next32() uint32 {
	if r.hasSpare {
		r.hasSpare = false
		return r.spare
	}
	v := r.next()
	r.spare = uint32(v >> 32)
	r.hasSpare = true
	return uint32(v)
}
