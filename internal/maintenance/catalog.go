package maintenance

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Service types known to the default catalog.
const (
	OilChange           = "oil_change"
	BrakeInspection     = "brake_inspection"
	TireRotation        = "tire_rotation"
	TransmissionService = "transmission_service"
	AirFilter           = "air_filter"
)

var (
	ErrInvalidCatalog     = errors.New("invalid maintenance catalog")
	ErrUnknownServiceType = errors.New("unknown service type")
)

// ServiceCatalogEntry holds the static maintenance rule for one service type.
type ServiceCatalogEntry struct {
	ServiceType        string `yaml:"service_type" json:"service_type"`
	MileageInterval    int    `yaml:"mileage_interval" json:"mileage_interval"`
	TimeIntervalMonths *int   `yaml:"time_interval_months,omitempty" json:"time_interval_months,omitempty"` // nil for mileage-only items
	Priority           int    `yaml:"priority" json:"priority"`                                            // 1-10, 10 is most urgent
	SafetyCritical     bool   `yaml:"safety_critical" json:"safety_critical"`
}

// HasTimeInterval reports whether the entry is also due by elapsed time.
func (e ServiceCatalogEntry) HasTimeInterval() bool {
	return e.TimeIntervalMonths != nil
}

func (e ServiceCatalogEntry) validate() error {
	if e.ServiceType == "" {
		return fmt.Errorf("%w: empty service type", ErrInvalidCatalog)
	}
	if e.MileageInterval <= 0 {
		return fmt.Errorf("%w: %s: mileage interval must be positive", ErrInvalidCatalog, e.ServiceType)
	}
	if e.TimeIntervalMonths != nil && *e.TimeIntervalMonths <= 0 {
		return fmt.Errorf("%w: %s: time interval must be positive", ErrInvalidCatalog, e.ServiceType)
	}
	if e.Priority < 1 || e.Priority > 10 {
		return fmt.Errorf("%w: %s: priority must be between 1 and 10", ErrInvalidCatalog, e.ServiceType)
	}
	return nil
}

// Catalog is the immutable, ordered set of maintenance rules. It is built once
// at startup and shared by every evaluation.
type Catalog struct {
	entries []ServiceCatalogEntry
	index   map[string]int
}

// NewCatalog validates and copies entries, preserving their order.
func NewCatalog(entries ...ServiceCatalogEntry) (Catalog, error) {
	if len(entries) == 0 {
		return Catalog{}, fmt.Errorf("%w: no entries", ErrInvalidCatalog)
	}
	c := Catalog{
		entries: make([]ServiceCatalogEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return Catalog{}, err
		}
		if _, dup := c.index[e.ServiceType]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate service type %s", ErrInvalidCatalog, e.ServiceType)
		}
		c.index[e.ServiceType] = len(c.entries)
		c.entries = append(c.entries, copyEntry(e))
	}
	return c, nil
}

// Entries returns a copy of the catalog in insertion order.
func (c Catalog) Entries() []ServiceCatalogEntry {
	out := make([]ServiceCatalogEntry, len(c.entries))
	for i, e := range c.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Lookup finds the entry for a service type.
func (c Catalog) Lookup(serviceType string) (ServiceCatalogEntry, error) {
	i, ok := c.index[serviceType]
	if !ok {
		return ServiceCatalogEntry{}, fmt.Errorf("%w: %s", ErrUnknownServiceType, serviceType)
	}
	return copyEntry(c.entries[i]), nil
}

// Len returns the number of entries.
func (c Catalog) Len() int {
	return len(c.entries)
}

func copyEntry(e ServiceCatalogEntry) ServiceCatalogEntry {
	if e.TimeIntervalMonths != nil {
		m := *e.TimeIntervalMonths
		e.TimeIntervalMonths = &m
	}
	return e
}

func months(n int) *int {
	return &n
}

// DefaultCatalog returns the built-in maintenance rules.
func DefaultCatalog() Catalog {
	c, err := NewCatalog(
		ServiceCatalogEntry{ServiceType: OilChange, MileageInterval: 5000, TimeIntervalMonths: months(6), Priority: 10, SafetyCritical: true},
		ServiceCatalogEntry{ServiceType: BrakeInspection, MileageInterval: 12000, TimeIntervalMonths: months(12), Priority: 9, SafetyCritical: true},
		ServiceCatalogEntry{ServiceType: TireRotation, MileageInterval: 7500, TimeIntervalMonths: months(6), Priority: 6},
		ServiceCatalogEntry{ServiceType: TransmissionService, MileageInterval: 30000, Priority: 7},
		ServiceCatalogEntry{ServiceType: AirFilter, MileageInterval: 15000, TimeIntervalMonths: months(12), Priority: 4},
	)
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Services []ServiceCatalogEntry `yaml:"services"`
}

// LoadCatalog reads a YAML catalog from path. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("maintenance: failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Catalog{}, fmt.Errorf("maintenance: failed to parse catalog: %w", err)
	}
	return NewCatalog(f.Services...)
}
