package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrInvalidValue    = errors.New("invalid value")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnavailable     = errors.New("unavailable")
	ErrInternal        = errors.New("internal error")
)

// Catalog identifiers. Zero is never a valid id.
type (
	CustomerID   uint32
	MonitorID    uint32
	ServerID     uint16
	RegionID     uint16
	HostSchemeID uint32
)

func (id CustomerID) Valid() bool   { return id != 0 }
func (id MonitorID) Valid() bool    { return id != 0 }
func (id ServerID) Valid() bool     { return id != 0 }
func (id RegionID) Valid() bool     { return id != 0 }
func (id HostSchemeID) Valid() bool { return id != 0 }

// ServerStatus is the worker-reported lifecycle state.
type ServerStatus uint8

const (
	ServerUnknown ServerStatus = iota
	ServerActive
	ServerInactive
	ServerDefunct
)

func (s ServerStatus) String() string {
	switch s {
	case ServerActive:
		return "active"
	case ServerInactive:
		return "inactive"
	case ServerDefunct:
		return "defunct"
	default:
		return "unknown"
	}
}

// Region groups polling servers geographically. All servers in a region
// share one ingest queue.
type Region struct {
	ID   RegionID
	Name string
}

// Server is one polling node. Identifier is its address in text form and is
// unique across the fleet.
type Server struct {
	ID                ServerID
	Region            RegionID
	Identifier        string
	Status            ServerStatus
	MonitorsPerSecond float64
	CPULoad           float64
	MemoryLoad        float64
	LastSeen          time.Time
}

// ServerTelemetry is the header block a worker reports on every upload.
type ServerTelemetry struct {
	Status            ServerStatus
	MonitorsPerSecond float64
	CPULoad           float64
	MemoryLoad        float64
}

// Monitor is a single probe target owned by a customer.
type Monitor struct {
	ID         MonitorID
	Customer   CustomerID
	HostScheme HostSchemeID
	URL        string
}

type Customer struct {
	ID   CustomerID
	Name string
}

// LatencyQuery narrows reads over both latency tables. Zero-valued ids are
// ignored; zero time bounds are unbounded.
type LatencyQuery struct {
	Customer   CustomerID
	HostScheme HostSchemeID
	Monitor    MonitorID
	Region     RegionID
	Server     ServerID
	Start      ZoranTime
	End        ZoranTime
}

// PurgeTask asks the background worker to drop all latency data owned by a
// set of customers. Execution is idempotent, so at-least-once delivery is
// acceptable.
type PurgeTask struct {
	ID        string
	Customers []CustomerID
}

// Catalogs (ports). Implementations hit the database on every call so admin
// edits are visible immediately; a miss returns the zero value wrapped with
// ErrInvalidValue or ErrNotFound.

type RegionCatalog interface {
	ByID(ctx Context, id RegionID) (Region, error)
	All(ctx Context) ([]Region, error)
}

type ServerCatalog interface {
	ByID(ctx Context, id ServerID) (Server, error)
	ByIdentifier(ctx Context, identifier string) (Server, error)
	All(ctx Context) ([]Server, error)
	UpdateTelemetry(ctx Context, id ServerID, t ServerTelemetry) error
}

type MonitorCatalog interface {
	ByID(ctx Context, id MonitorID) (Monitor, error)
	All(ctx Context) ([]Monitor, error)
}

type CustomerCatalog interface {
	CapabilitiesByID(ctx Context, id CustomerID) (CustomerCapabilities, error)
}

// LatencyRepository (port) is the samples store seen by the serving path.

type LatencyRepository interface {
	// CommitRaw writes one sub-batch in a single transaction, dropping
	// samples whose monitor or server is unknown or whose latency exceeds
	// MaxLatencyMicros. Returns the number of rows actually inserted.
	CommitRaw(ctx Context, samples []Sample) (int, error)
	RecentEntries(ctx Context, q LatencyQuery) ([]Sample, error)
	AggregatedEntries(ctx Context, q LatencyQuery) ([]AggregatedSample, error)
	// RawSummary aggregates the raw table SQL-side under q's filters.
	RawSummary(ctx Context, q LatencyQuery) (AggregatedSample, error)
}

// AggregationStore (port) is the store surface the background aggregator
// drives.

type AggregationStore interface {
	EligibleRaw(ctx Context, before ZoranTime) ([]Sample, error)
	EligibleAggregated(ctx Context, before ZoranTime) ([]AggregatedSample, error)
	// CommitWindows replaces eligible input rows with their summaries in one
	// transaction: inputs strictly older than before are deleted, then rows
	// are inserted with conflict-ignore.
	CommitWindows(ctx Context, before ZoranTime, fromAggregated bool, rows []AggregatedSample) (int, error)
	// ExpungeBefore removes rows older than before from both tables.
	// Returns (raw, aggregated) rows removed.
	ExpungeBefore(ctx Context, before ZoranTime) (int64, int64, error)
	DeleteByCustomers(ctx Context, customers []CustomerID) (int64, error)
}

// IngestSink (port) accepts decoded worker samples for asynchronous
// persistence. Add never blocks on I/O.

type IngestSink interface {
	Add(region RegionID, samples []Sample)
}

// PurgeQueue (port) hands purge tasks to the background worker.

type PurgeQueue interface {
	EnqueuePurge(ctx Context, task PurgeTask) (string, error)
}

// Notifier (port) posts fire-and-forget notifications to an external
// endpoint. Delivery order per destination is FIFO.

type Notifier interface {
	Notify(destination string, body []byte)
}

// Context is an alias to allow decoupling from std context in domain
// Adapters and usecases should pass context.Context through

type Context = context.Context
