// Package volume lists the storage volumes of the machine and drives the
// cache through its lifecycle: restore or build, watch, flush, index.
package volume

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/v4/disk"
)

const (
	defaultName     = "Local Volume"
	unknownDiskType = "Unknown"
)

// Volume describes one mounted volume. It is recomputed on every listing.
type Volume struct {
	Name           string `json:"name"`
	MountPoint     string `json:"mount_point"`
	Used           uint64 `json:"used"`
	Size           uint64 `json:"size"`
	Available      uint64 `json:"available"`
	Removable      bool   `json:"removable"`
	FileSystemType string `json:"file_system_type"`
	DiskType       string `json:"disk_type"`
}

// pseudoFilesystems never hold user files.
var pseudoFilesystems = map[string]bool{
	"autofs": true, "binfmt_misc": true, "bpf": true, "cgroup": true,
	"cgroup2": true, "configfs": true, "debugfs": true, "devpts": true,
	"devtmpfs": true, "efivarfs": true, "fusectl": true, "hugetlbfs": true,
	"mqueue": true, "nsfs": true, "proc": true, "pstore": true,
	"securityfs": true, "squashfs": true, "sysfs": true, "tmpfs": true,
	"tracefs": true, "overlay": true,
}

// List returns the physical volumes sorted by mount point.
func List() ([]Volume, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	seen := make(map[string]bool, len(parts))
	volumes := make([]Volume, 0, len(parts))
	for _, p := range parts {
		if pseudoFilesystems[p.Fstype] || seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true

		v, err := describe(p.Mountpoint, p.Device, p.Fstype)
		if err != nil {
			continue
		}
		volumes = append(volumes, v)
	}
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].MountPoint < volumes[j].MountPoint })
	return volumes, nil
}

// ForRoots describes arbitrary directories as if they were volumes.
func ForRoots(roots []string) ([]Volume, error) {
	volumes := make([]Volume, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", root, err)
		}
		v, err := describe(abs, "", "")
		if err != nil {
			return nil, err
		}
		v.Name = filepath.Base(abs)
		volumes = append(volumes, v)
	}
	return volumes, nil
}

func describe(mount, device, fstype string) (Volume, error) {
	usage, err := disk.Usage(mount)
	if err != nil {
		return Volume{}, fmt.Errorf("usage of %s: %w", mount, err)
	}
	if fstype == "" {
		fstype = usage.Fstype
	}

	v := Volume{
		Name:           defaultName,
		MountPoint:     mount,
		Used:           usage.Used,
		Size:           usage.Total,
		Available:      usage.Free,
		FileSystemType: fstype,
		DiskType:       unknownDiskType,
	}
	if device != "" {
		if label, err := disk.Label(filepath.Base(device)); err == nil && label != "" {
			v.Name = label
		}
		v.Removable, v.DiskType = probeDevice(device)
	}
	return v, nil
}
