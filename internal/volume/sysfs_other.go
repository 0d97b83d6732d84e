//go:build !linux

package volume

func probeDevice(string) (bool, string) {
	return false, unknownDiskType
}
