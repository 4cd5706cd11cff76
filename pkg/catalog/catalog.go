// Package catalog queries an external metadata catalog for dataset and
// file records. One client is memoized per catalog instance and shared
// for the process lifetime; successful responses are cached.
package catalog

import (
	"fmt"
	"time"
)

// Instance identifies one of the named metadata registries a dataset may
// be registered with.
type Instance string

const (
	InstanceGlobal Instance = "global"
	InstancePhys01 Instance = "phys01"
	InstancePhys02 Instance = "phys02"
	InstancePhys03 Instance = "phys03"
	InstanceCAF    Instance = "caf"
)

// Instances is the fixed set of recognized catalog instances.
var Instances = []Instance{
	InstanceGlobal,
	InstancePhys01,
	InstancePhys02,
	InstancePhys03,
	InstanceCAF,
}

// Valid reports whether the instance is one of the recognized registries.
func (i Instance) Valid() bool {
	for _, known := range Instances {
		if i == known {
			return true
		}
	}
	return false
}

// DatasetRecord is the catalog's registration entry for a dataset.
type DatasetRecord struct {
	Name           string    `json:"dataset"`
	CreatedAt      time.Time `json:"creation_date"`
	NumFiles       int       `json:"num_files"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
}

// FileRecord is the catalog's entry for a single file of a dataset.
type FileRecord struct {
	LogicalName string `json:"logical_name"`
	SizeBytes   int64  `json:"size_bytes"`
	Checksum    string `json:"checksum"`
	Valid       bool   `json:"valid_flag"`
	ID          int64  `json:"file_id"`
}

// NotFoundError is returned when a well-formed dataset name has no records
// registered with the queried catalog instance.
type NotFoundError struct {
	Dataset  string
	Instance Instance
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("dataset %q not found in catalog instance %q", e.Dataset, e.Instance)
}
