package bootstrap

import (
	"context"
	"time"

	"github.com/kbukum/medallion/component"
	"github.com/kbukum/medallion/logger"
)

// ComponentSummary is the startup view of one registered component.
type ComponentSummary struct {
	Name    string
	Type    string
	Details string
	Port    int
	Health  component.HealthStatus
	Message string
}

// Summary reports what the application started with.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
}

// NewSummary creates a startup summary for a service.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// StartupDuration returns the recorded startup time.
func (s *Summary) StartupDuration() time.Duration {
	return s.startupDuration
}

// Collect gathers descriptions and live health from the registry, in
// registration order.
func (s *Summary) Collect(ctx context.Context, registry *component.Registry) []ComponentSummary {
	if registry == nil {
		return nil
	}
	healths := registry.HealthAll(ctx)
	out := make([]ComponentSummary, 0, len(healths))
	for _, h := range healths {
		cs := ComponentSummary{Name: h.Name, Health: h.Status, Message: h.Message}
		if d, ok := registry.Get(h.Name).(component.Describable); ok {
			desc := d.Describe()
			cs.Type = desc.Type
			cs.Details = desc.Details
			cs.Port = desc.Port
			if desc.Name != "" {
				cs.Name = desc.Name
			}
		}
		out = append(out, cs)
	}
	return out
}

// Log writes one line per component and a closing summary line.
func (s *Summary) Log(ctx context.Context, registry *component.Registry, log *logger.Logger) []ComponentSummary {
	components := s.Collect(ctx, registry)
	healthy := 0
	for _, c := range components {
		fields := logger.Fields(
			logger.FieldComponent, c.Name,
			"type", c.Type,
			"health", string(c.Health),
		)
		if c.Details != "" {
			fields["details"] = c.Details
		}
		if c.Port > 0 {
			fields["port"] = c.Port
		}
		if c.Message != "" {
			fields["message"] = c.Message
		}
		if c.Health == component.StatusHealthy {
			healthy++
			log.Info("Component ready", fields)
		} else {
			log.Warn("Component not healthy", fields)
		}
	}

	log.Info("Application started", logger.Fields(
		"name", s.serviceName,
		"version", s.version,
		"startup_ms", s.startupDuration.Milliseconds(),
		"components", len(components),
		"healthy", healthy,
	))
	return components
}
