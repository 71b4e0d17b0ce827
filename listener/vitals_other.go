//go:build !linux

package listener

func addLoadAverages(map[string]any) {}

func addDiskUsage(map[string]any) {}
