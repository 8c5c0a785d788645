package domain

import (
	"math"
	"time"
)

// ZoranEpoch is the fixed Unix offset for all on-disk timestamps. Storing
// seconds since this epoch keeps the timestamp column at 4 bytes.
const ZoranEpoch int64 = 1_609_484_400

// ZoranTime is an unsigned 32-bit offset in seconds from ZoranEpoch.
type ZoranTime uint32

// ToZoran converts a Unix timestamp, saturating below the epoch at 0 and
// above the representable range at 2^32-1.
func ToZoran(unix int64) ZoranTime {
	off := unix - ZoranEpoch
	if off < 0 {
		return 0
	}
	if off > math.MaxUint32 {
		return math.MaxUint32
	}
	return ZoranTime(off)
}

// ZoranFromTime is shorthand for ToZoran(t.Unix()).
func ZoranFromTime(t time.Time) ZoranTime { return ToZoran(t.Unix()) }

// Unix converts back to a Unix timestamp.
func (t ZoranTime) Unix() int64 { return int64(t) + ZoranEpoch }

// Time converts to a UTC time.Time.
func (t ZoranTime) Time() time.Time { return time.Unix(t.Unix(), 0).UTC() }
