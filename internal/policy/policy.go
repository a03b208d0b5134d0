// Package policy loads the optional YAML detection policy file. The file
// tunes the byte budget of the range-growth loop, the sample size, the
// format allow-list, and per-host request pacing.
package policy

import (
	"fmt"

	"github.com/guillermoBallester/strata/internal/core/service"
)

// Policy is the parsed detection policy file.
type Policy struct {
	// Formats replaces the default scan allow-list when non-empty.
	Formats []string `yaml:"formats"`

	Windows struct {
		InitialBytes int64 `yaml:"initial_bytes"`
		MaxBytes     int64 `yaml:"max_bytes"`
		MaxDoublings int   `yaml:"max_doublings"`
	} `yaml:"windows"`

	Sample struct {
		Rows            int `yaml:"rows"`
		ValuesPerColumn int `yaml:"values_per_column"`
	} `yaml:"sample"`

	Hosts map[string]HostEntry `yaml:"hosts"`
}

// HostEntry is the pacing override for one upstream host.
type HostEntry struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

func validate(pol *Policy) error {
	if pol.Windows.InitialBytes < 0 || pol.Windows.MaxBytes < 0 {
		return fmt.Errorf("windows: byte sizes must not be negative")
	}
	if pol.Windows.InitialBytes > 0 && pol.Windows.MaxBytes > 0 &&
		pol.Windows.InitialBytes > pol.Windows.MaxBytes {
		return fmt.Errorf("windows: initial_bytes (%d) must not exceed max_bytes (%d)",
			pol.Windows.InitialBytes, pol.Windows.MaxBytes)
	}
	if pol.Windows.MaxDoublings < 0 {
		return fmt.Errorf("windows: max_doublings must not be negative")
	}
	if pol.Sample.Rows < 0 || pol.Sample.ValuesPerColumn < 0 {
		return fmt.Errorf("sample: values must not be negative")
	}
	for host, entry := range pol.Hosts {
		if host == "" {
			return fmt.Errorf("hosts contains an empty key")
		}
		if entry.RequestsPerSecond < 0 {
			return fmt.Errorf("hosts[%q]: requests_per_second must not be negative", host)
		}
	}
	return nil
}

// ApplyDetection overlays the policy's non-zero knobs onto a DetectionPolicy.
func (p *Policy) ApplyDetection(det *service.DetectionPolicy) {
	if p.Windows.InitialBytes > 0 {
		det.InitialWindow = p.Windows.InitialBytes
	}
	if p.Windows.MaxBytes > 0 {
		det.MaxWindow = p.Windows.MaxBytes
	}
	if p.Windows.MaxDoublings > 0 {
		det.MaxDoublings = p.Windows.MaxDoublings
	}
	if p.Sample.Rows > 0 {
		det.SampleRows = p.Sample.Rows
	}
	if p.Sample.ValuesPerColumn > 0 {
		det.MaxSampleValues = p.Sample.ValuesPerColumn
	}
}

// ApplyScan overlays the policy's format list and host pacing onto a ScanPolicy.
func (p *Policy) ApplyScan(scan *service.ScanPolicy) {
	if len(p.Formats) > 0 {
		scan.DefaultFormats = p.Formats
	}
	if len(p.Hosts) > 0 {
		if scan.HostOverrides == nil {
			scan.HostOverrides = make(map[string]service.HostPacing, len(p.Hosts))
		}
		for host, entry := range p.Hosts {
			scan.HostOverrides[host] = service.HostPacing{
				RPS:   entry.RequestsPerSecond,
				Burst: entry.Burst,
			}
		}
	}
}
