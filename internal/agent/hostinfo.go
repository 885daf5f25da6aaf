package agent

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// hostFields builds operator-facing log fields describing this node's host
// resources. Purely informational: it never crosses the wire protocol and
// never factors into placement or scheduling decisions, which key off the
// GPU inventory probe alone.
func hostFields() logrus.Fields {
	fields := logrus.Fields{}

	if counts, err := cpu.Counts(true); err == nil {
		fields["host_cpu_count"] = counts
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields["host_mem_total_bytes"] = vm.Total
		fields["host_mem_available_bytes"] = vm.Available
	}
	return fields
}
