package volume

import (
	"os"
	"path/filepath"
	"strings"
)

const sysBlock = "/sys/class/block"

// probeDevice reads the removable flag and rotational hint of the disk that
// holds device, e.g. /dev/sda1 is answered by /sys/block/sda.
func probeDevice(device string) (removable bool, diskType string) {
	disk := parentDisk(filepath.Base(device))
	if disk == "" {
		return false, unknownDiskType
	}
	base := filepath.Join(sysBlock, disk)

	if v, ok := readFlag(filepath.Join(base, "removable")); ok {
		removable = v == "1"
	}
	diskType = unknownDiskType
	if v, ok := readFlag(filepath.Join(base, "queue", "rotational")); ok {
		if v == "1" {
			diskType = "HDD"
		} else {
			diskType = "SSD"
		}
	}
	return removable, diskType
}

// parentDisk maps a partition name to its disk name.
func parentDisk(name string) string {
	link := filepath.Join(sysBlock, name)
	if _, err := os.Stat(filepath.Join(link, "partition")); err != nil {
		if _, err := os.Stat(link); err != nil {
			return ""
		}
		return name
	}
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return ""
	}
	return filepath.Base(filepath.Dir(target))
}

func readFlag(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
