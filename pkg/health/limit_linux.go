//go:build linux

package health

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

var cgroupLimitFiles = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// systemMemoryLimit is the cgroup memory limit capped to the host memory.
func systemMemoryLimit() uint64 {
	total := readMemInfoValue("MemTotal")
	for _, path := range cgroupLimitFiles {
		limit, ok := readCgroupLimit(path)
		if !ok {
			continue
		}
		if total == 0 || limit < total {
			return limit
		}
		break
	}
	return total
}

func readCgroupLimit(path string) (uint64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "max" {
		return 0, false
	}
	limit, err := strconv.ParseUint(value, 10, 64)
	if err != nil || limit == 0 {
		return 0, false
	}
	return limit, true
}

func readMemInfoValue(key string) uint64 {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	prefix := key + ":"

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}

		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}

		// meminfo values are in kB
		return value * 1024
	}

	return 0
}
