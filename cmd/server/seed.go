package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hostpulse/hostpulse/internal/adapter/repo/postgres"
	"github.com/hostpulse/hostpulse/internal/domain"
)

// seedFile is the catalog bootstrap document. Every section is optional;
// rows are upserted so re-seeding an environment is harmless.
type seedFile struct {
	Regions []struct {
		ID   uint16 `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"regions"`
	Servers []struct {
		ID         uint16 `yaml:"id"`
		Region     uint16 `yaml:"region"`
		Identifier string `yaml:"identifier"`
		Status     string `yaml:"status"`
	} `yaml:"servers"`
	Customers []struct {
		ID                 uint32   `yaml:"id"`
		Name               string   `yaml:"name"`
		PollingIntervalSec uint32   `yaml:"polling_interval_sec"`
		MaxMonitors        uint32   `yaml:"max_monitors"`
		RetentionDays      uint32   `yaml:"retention_days"`
		Capabilities       []string `yaml:"capabilities"`
	} `yaml:"customers"`
	Monitors []struct {
		ID         uint32 `yaml:"id"`
		Customer   uint32 `yaml:"customer"`
		HostScheme uint32 `yaml:"host_scheme"`
		URL        string `yaml:"url"`
	} `yaml:"monitors"`
}

var capabilityNames = map[string]domain.CapabilityFlags{
	"active":            domain.CapActive,
	"multi_region":      domain.CapMultiRegion,
	"wordpress":         domain.CapWordPress,
	"rest":              domain.CapREST,
	"content_check":     domain.CapContentCheck,
	"keyword_check":     domain.CapKeywordCheck,
	"post":              domain.CapPOST,
	"latency_tracking":  domain.CapLatencyTracking,
	"ssl_expiration":    domain.CapSSLExpiration,
	"ping_polling":      domain.CapPingPolling,
	"blacklist":         domain.CapBlacklist,
	"domain_expiration": domain.CapDomainExpiration,
	"maintenance":       domain.CapMaintenance,
	"rollups":           domain.CapRollups,
	"paused":            domain.CapPaused,
}

func parseCapabilities(names []string) (domain.CapabilityFlags, error) {
	var flags domain.CapabilityFlags
	for _, name := range names {
		f, ok := capabilityNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown capability %q", name)
		}
		flags |= f
	}
	return flags, nil
}

func parseServerStatus(s string) (domain.ServerStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return domain.ServerUnknown, nil
	case "active":
		return domain.ServerActive, nil
	case "inactive":
		return domain.ServerInactive, nil
	case "defunct":
		return domain.ServerDefunct, nil
	default:
		return 0, fmt.Errorf("unknown server status %q", s)
	}
}

// seedCatalog loads the YAML catalog at path and upserts its rows.
func seedCatalog(ctx context.Context, path string, regions *postgres.RegionRepo, servers *postgres.ServerRepo, customers *postgres.CustomerRepo, monitors *postgres.MonitorRepo) error {
	raw, err := os.ReadFile(path) //nolint:gosec // Operator-provided path.
	if err != nil {
		return fmt.Errorf("op=seed.read: %w", err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("op=seed.parse: %w", err)
	}

	for _, r := range doc.Regions {
		if err := regions.Upsert(ctx, domain.Region{ID: domain.RegionID(r.ID), Name: r.Name}); err != nil {
			return fmt.Errorf("op=seed.region %d: %w", r.ID, err)
		}
	}
	for _, s := range doc.Servers {
		status, err := parseServerStatus(s.Status)
		if err != nil {
			return fmt.Errorf("op=seed.server %d: %w", s.ID, err)
		}
		err = servers.Upsert(ctx, domain.Server{
			ID:         domain.ServerID(s.ID),
			Region:     domain.RegionID(s.Region),
			Identifier: s.Identifier,
			Status:     status,
		})
		if err != nil {
			return fmt.Errorf("op=seed.server %d: %w", s.ID, err)
		}
	}
	for _, c := range doc.Customers {
		flags, err := parseCapabilities(c.Capabilities)
		if err != nil {
			return fmt.Errorf("op=seed.customer %d: %w", c.ID, err)
		}
		caps := domain.CustomerCapabilities{
			Customer:           domain.CustomerID(c.ID),
			PollingIntervalSec: c.PollingIntervalSec,
			MaxMonitors:        c.MaxMonitors,
			RetentionDays:      c.RetentionDays,
			Flags:              flags,
		}
		if err := customers.Upsert(ctx, domain.Customer{ID: domain.CustomerID(c.ID), Name: c.Name}, caps); err != nil {
			return fmt.Errorf("op=seed.customer %d: %w", c.ID, err)
		}
	}
	for _, m := range doc.Monitors {
		err := monitors.Upsert(ctx, domain.Monitor{
			ID:         domain.MonitorID(m.ID),
			Customer:   domain.CustomerID(m.Customer),
			HostScheme: domain.HostSchemeID(m.HostScheme),
			URL:        m.URL,
		})
		if err != nil {
			return fmt.Errorf("op=seed.monitor %d: %w", m.ID, err)
		}
	}

	slog.Info("catalog seeded",
		slog.String("file", path),
		slog.Int("regions", len(doc.Regions)),
		slog.Int("servers", len(doc.Servers)),
		slog.Int("customers", len(doc.Customers)),
		slog.Int("monitors", len(doc.Monitors)))
	return nil
}
