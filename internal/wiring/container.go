// Package wiring provides boxctl's dependency injection container.
package wiring

import (
	"boxdb/pkg/boxconfig"
	"boxdb/pkg/boxmetrics"
	"boxdb/pkg/catalog"
)

// Container holds the dependencies boxctl's commands share: the parsed
// configuration, the box-registry catalog, and a metrics registry.
type Container struct {
	config  *boxconfig.Config
	catalog *catalog.Catalog
	metrics *boxmetrics.Metrics
}

// New builds a container from an already-loaded config, opening its
// catalog database and registering its metrics.
func New(cfg *boxconfig.Config) (*Container, error) {
	cat, err := catalog.Open(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	return &Container{
		config:  cfg,
		catalog: cat,
		metrics: boxmetrics.NewMetrics(),
	}, nil
}

// Config returns the container's configuration.
func (c *Container) Config() *boxconfig.Config { return c.config }

// Catalog returns the box registry.
func (c *Container) Catalog() *catalog.Catalog { return c.catalog }

// Metrics returns the Prometheus metrics registry.
func (c *Container) Metrics() *boxmetrics.Metrics { return c.metrics }

// Close releases every resource the container owns.
func (c *Container) Close() error {
	return c.catalog.Close()
}
