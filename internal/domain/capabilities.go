package domain

// CapabilityFlags is the customer feature bitset. Bit positions are wire
// format shared with the website and must not be reordered.
type CapabilityFlags uint16

const (
	CapActive CapabilityFlags = 1 << iota
	CapMultiRegion
	CapWordPress
	CapREST
	CapContentCheck
	CapKeywordCheck
	CapPOST
	CapLatencyTracking
	CapSSLExpiration
	CapPingPolling
	CapBlacklist
	CapDomainExpiration
	CapMaintenance
	CapRollups
	capReservedBit14
	CapPaused
)

// Has reports whether every bit in mask is set.
func (f CapabilityFlags) Has(mask CapabilityFlags) bool { return f&mask == mask }

// CustomerCapabilities is the per-customer plan record.
type CustomerCapabilities struct {
	Customer           CustomerID
	PollingIntervalSec uint32
	MaxMonitors        uint32
	RetentionDays      uint32
	Flags              CapabilityFlags
}

// LatencyAllowed reports whether the customer may read latency data: the
// account is active, not paused, and has latency tracking on its plan.
func (c CustomerCapabilities) LatencyAllowed() bool {
	return c.Flags.Has(CapActive) && !c.Flags.Has(CapPaused) && c.Flags.Has(CapLatencyTracking)
}
