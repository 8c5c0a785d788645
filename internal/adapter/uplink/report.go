// Package uplink encodes and decodes the compact binary batches polling
// workers upload.
package uplink

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/pkg/fixedpoint"
)

// Frame layout: a 64-byte header followed by 12-byte sample records.
// Multi-byte fields are little-endian except the IPv6 address, which is in
// network order. The IPv4 address is stored least significant byte first.
const (
	HeaderSize = 0x40
	SampleSize = 12

	offIPv4   = 0x00
	offIPv6   = 0x04
	offRate   = 0x14
	offCPU    = 0x18
	offMemory = 0x1A
	offStatus = 0x1C
)

// ReportSample is one observation inside an upload. The server is implied by
// the report header.
type ReportSample struct {
	Monitor domain.MonitorID
	domain.ShortSample
}

// Report is one decoded worker upload: the reporting server's addresses and
// load telemetry plus its batch of observations.
type Report struct {
	IPv4      netip.Addr
	IPv6      netip.Addr
	Telemetry domain.ServerTelemetry
	Samples   []ReportSample
}

// Identifier returns the catalog identifier for the reporting server: the
// IPv4 address when present, otherwise the IPv6 address.
func (r Report) Identifier() string {
	if r.IPv4.IsValid() && !r.IPv4.IsUnspecified() {
		return r.IPv4.String()
	}
	if r.IPv6.IsValid() && !r.IPv6.IsUnspecified() {
		return r.IPv6.String()
	}
	return ""
}

// ParseReport decodes body. The body must be at least HeaderSize bytes and
// the remainder must divide evenly into sample records.
func ParseReport(body []byte) (Report, error) {
	if len(body) < HeaderSize {
		return Report{}, fmt.Errorf("op=uplink.parse: body %d bytes: %w", len(body), domain.ErrInvalidArgument)
	}
	if (len(body)-HeaderSize)%SampleSize != 0 {
		return Report{}, fmt.Errorf("op=uplink.parse: trailing %d bytes: %w", (len(body)-HeaderSize)%SampleSize, domain.ErrInvalidArgument)
	}

	var r Report
	if v := binary.LittleEndian.Uint32(body[offIPv4:]); v != 0 {
		r.IPv4 = netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	}
	var v6 [16]byte
	copy(v6[:], body[offIPv6:offIPv6+16])
	if v6 != ([16]byte{}) {
		r.IPv6 = netip.AddrFrom16(v6)
	}

	r.Telemetry = domain.ServerTelemetry{
		Status:            serverStatus(body[offStatus]),
		MonitorsPerSecond: fixedpoint.FromU24_8(binary.LittleEndian.Uint32(body[offRate:])),
		CPULoad:           fixedpoint.FromU4_12(binary.LittleEndian.Uint16(body[offCPU:])),
		MemoryLoad:        fixedpoint.FromU0_16(binary.LittleEndian.Uint16(body[offMemory:])),
	}

	n := (len(body) - HeaderSize) / SampleSize
	r.Samples = make([]ReportSample, 0, n)
	for i := 0; i < n; i++ {
		rec := body[HeaderSize+i*SampleSize:]
		r.Samples = append(r.Samples, ReportSample{
			Monitor: domain.MonitorID(binary.LittleEndian.Uint32(rec)),
			ShortSample: domain.ShortSample{
				Timestamp:     domain.ZoranTime(binary.LittleEndian.Uint32(rec[4:])),
				LatencyMicros: binary.LittleEndian.Uint32(rec[8:]),
			},
		})
	}
	return r, nil
}

// EncodeReport renders r in wire form. Reserved header bytes are zero.
func EncodeReport(r Report) []byte {
	out := make([]byte, HeaderSize+len(r.Samples)*SampleSize)
	if r.IPv4.IsValid() {
		a := r.IPv4.As4()
		v := uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
		binary.LittleEndian.PutUint32(out[offIPv4:], v)
	}
	if r.IPv6.IsValid() {
		a := r.IPv6.As16()
		copy(out[offIPv6:], a[:])
	}
	binary.LittleEndian.PutUint32(out[offRate:], fixedpoint.U24_8(r.Telemetry.MonitorsPerSecond))
	binary.LittleEndian.PutUint16(out[offCPU:], fixedpoint.U4_12(r.Telemetry.CPULoad))
	binary.LittleEndian.PutUint16(out[offMemory:], fixedpoint.U0_16(r.Telemetry.MemoryLoad))
	out[offStatus] = byte(r.Telemetry.Status)

	for i, s := range r.Samples {
		rec := out[HeaderSize+i*SampleSize:]
		binary.LittleEndian.PutUint32(rec, uint32(s.Monitor))
		binary.LittleEndian.PutUint32(rec[4:], uint32(s.Timestamp))
		binary.LittleEndian.PutUint32(rec[8:], s.LatencyMicros)
	}
	return out
}

func serverStatus(b byte) domain.ServerStatus {
	if b > byte(domain.ServerDefunct) {
		return domain.ServerUnknown
	}
	return domain.ServerStatus(b)
}
