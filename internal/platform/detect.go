package platform

import (
	"runtime"
	"strconv"
	"strings"
)

func numCPU() int { return runtime.NumCPU() }

// parseNvidiaSMI parses the CSV output of
// `nvidia-smi --query-gpu=name,memory.total --format=csv,noheader,nounits`.
func parseNvidiaSMI(out string) []GPU {
	var gpus []GPU
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		memMiB, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
		gpus = append(gpus, GPU{Name: name, MemoryMiB: memMiB})
	}
	return gpus
}
