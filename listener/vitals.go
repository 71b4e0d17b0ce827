package listener

import (
	"bufio"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// collectVitals gathers system metrics. Every probe is best effort; a field
// that cannot be read is simply absent.
func collectVitals() map[string]any {
	vitals := map[string]any{
		"platform":   runtime.GOOS,
		"go_version": runtime.Version(),
		"machine":    runtime.GOARCH,
	}
	if host, err := os.Hostname(); err == nil {
		vitals["hostname"] = host
	}

	addLoadAverages(vitals)
	addMemInfo(vitals)
	addCPUTemp(vitals)
	addUptime(vitals)
	addDiskUsage(vitals)

	return vitals
}

func addMemInfo(vitals map[string]any) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return
	}
	defer f.Close()

	fields := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		fields[strings.TrimSuffix(parts[0], ":")] = kb
	}

	total, okT := fields["MemTotal"]
	available, okA := fields["MemAvailable"]
	if !okT || !okA || total == 0 {
		return
	}
	vitals["mem_total_mb"] = total / 1024
	vitals["mem_available_mb"] = available / 1024
	vitals["mem_used_percent"] = round1((1 - float64(available)/float64(total)) * 100)
}

func addCPUTemp(vitals map[string]any) {
	raw, err := os.ReadFile("/sys/class/thermal/thermal_zone0/temp")
	if err != nil {
		return
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return
	}
	vitals["cpu_temp_c"] = round1(float64(milli) / 1000)
}

func addUptime(vitals map[string]any) {
	raw, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return
	}
	parts := strings.Fields(string(raw))
	if len(parts) == 0 {
		return
	}
	secs, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return
	}
	vitals["uptime_seconds"] = int64(math.Round(secs))
	vitals["uptime_hours"] = round1(secs / 3600)
	vitals["uptime_days"] = round2(secs / 86400)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
