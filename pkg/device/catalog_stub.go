//go:build !linux

package device

import (
	"fmt"
	"runtime"
)

// Catalog is a no-op device catalog on non-Linux systems.
type Catalog struct{}

// NewCatalog returns a stub catalog on non-Linux systems.
func NewCatalog() *Catalog {
	return &Catalog{}
}

func (c *Catalog) ListDevices() ([]Device, error) {
	return nil, fmt.Errorf("device enumeration not supported on %s", runtime.GOOS)
}

// ListDevices enumerates using a default catalog.
func ListDevices() ([]Device, error) {
	return NewCatalog().ListDevices()
}
