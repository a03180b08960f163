package main

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/irctrakz/sockmgr/pkg/logging"
	"github.com/irctrakz/sockmgr/pkg/socket"
)

type metricsSnapshot struct {
	Timestamp string            `json:"ts"`
	Total     map[string]uint64 `json:"total"`
	Handles   int               `json:"handles"`
	Connected int               `json:"connected"`
	Disp      map[string]uint64 `json:"dispatcher"`
	RT        map[string]uint64 `json:"rt"`
	Srv       map[string]uint64 `json:"srv_limits"`
}

func runMetricsReporter(ctx context.Context, reg *socket.Registry, d time.Duration, format string) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "text"
	}

	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		dumpMetrics(reg, format)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func collectMetrics(reg *socket.Registry) metricsSnapshot {
	dm := reg.DetailedMetrics()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return metricsSnapshot{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Total:     dm.Total.Map(),
		Handles:   dm.Count,
		Connected: dm.Connected,
		Disp:      dm.Dispatcher,
		RT: map[string]uint64{
			"heap_alloc": ms.HeapAlloc,
			"heap_inuse": ms.HeapInuse,
			"sys":        ms.Sys,
			"num_gc":     uint64(ms.NumGC),
			"goroutines": uint64(runtime.NumGoroutine()),
		},
		Srv: buildServerLimits(dm),
	}
}

func dumpMetrics(reg *socket.Registry, format string) {
	snap := collectMetrics(reg)
	switch format {
	case "json":
		b, _ := json.Marshal(snap)
		logging.Infof("metrics: %s", string(b))
	default:
		logging.Infof("metrics: ts=%s total: sent=%d/%d recv=%d/%d err=%d conns=%d/%d | live=%d connected=%d | disp: ok=%d drop=%d panic=%d | srv: fds=%d/%d | rt: heap=%dMi gor=%d gc=%d",
			snap.Timestamp,
			snap.Total["pkts_sent"], snap.Total["bytes_sent"],
			snap.Total["pkts_recv"], snap.Total["bytes_recv"],
			snap.Total["errors"],
			snap.Total["conns_created"], snap.Total["conns_closed"],
			snap.Handles, snap.Connected,
			snap.Disp["delivered"], snap.Disp["queueFullDrops"], snap.Disp["panics"],
			snap.Srv["open_fds"], snap.Srv["nofile_soft"],
			snap.RT["heap_alloc"]/(1024*1024), snap.RT["goroutines"], snap.RT["num_gc"],
		)
	}
}

// buildServerLimits collects best-effort process limits that cap how many
// sockets can be open at once.
func buildServerLimits(dm socket.DetailedMetrics) map[string]uint64 {
	out := map[string]uint64{}
	var rl syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rl); err == nil {
		out["nofile_soft"] = uint64(rl.Cur)
		out["nofile_hard"] = uint64(rl.Max)
	}
	if ents, err := os.ReadDir("/proc/self/fd"); err == nil {
		out["open_fds"] = uint64(len(ents))
		if soft, ok := out["nofile_soft"]; ok && soft > 0 {
			out["fd_util_pct"] = (out["open_fds"] * 100) / soft
		}
	}
	if low, high, ok := readPortRange("/proc/sys/net/ipv4/ip_local_port_range"); ok && high > low {
		size := high - low + 1
		used := uint64(dm.Connected)
		out["eph_size"] = size
		out["eph_used_est"] = used
		out["eph_util_pct"] = (used * 100) / size
	}
	return out
}

func readPortRange(path string) (low, high uint64, ok bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false
	}
	f := strings.Fields(string(b))
	if len(f) < 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseUint(f[0], 10, 64)
	hi, err2 := strconv.ParseUint(f[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}
