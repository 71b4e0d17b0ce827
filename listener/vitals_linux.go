//go:build linux

package listener

import "golang.org/x/sys/unix"

func addLoadAverages(vitals map[string]any) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return
	}
	// Sysinfo load averages are fixed point with 16 fractional bits.
	const scale = 1 << 16
	vitals["load_1m"] = round2(float64(info.Loads[0]) / scale)
	vitals["load_5m"] = round2(float64(info.Loads[1]) / scale)
	vitals["load_15m"] = round2(float64(info.Loads[2]) / scale)
}

func addDiskUsage(vitals map[string]any) {
	var stat unix.Statfs_t
	if err := unix.Statfs("/", &stat); err != nil {
		return
	}
	total := float64(stat.Blocks) * float64(stat.Bsize)
	free := float64(stat.Bavail) * float64(stat.Bsize)
	if total == 0 {
		return
	}
	vitals["disk_total_gb"] = round1(total / (1 << 30))
	vitals["disk_free_gb"] = round1(free / (1 << 30))
	vitals["disk_used_percent"] = round1((total - free) / total * 100)
}
