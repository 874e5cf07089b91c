package offline

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type statsCollector struct {
	network atomic.Uint64
	cache   atomic.Uint64
	offline atomic.Uint64
	bypass  atomic.Uint64
	none    atomic.Uint64

	stored  atomic.Uint64
	failed  atomic.Uint64
	skipped atomic.Uint64

	totalResponses atomic.Uint64
	totalRespBytes atomic.Uint64
	minRespBytes   atomic.Uint64
	maxRespBytes   atomic.Uint64
}

func newStatsCollector() *statsCollector {
	s := &statsCollector{}
	s.minRespBytes.Store(math.MaxUint64)
	return s
}

func (s *statsCollector) observe(res Result) {
	switch res.Source {
	case SourceNetwork:
		s.network.Add(1)
	case SourceCache:
		s.cache.Add(1)
	case SourceOffline:
		s.offline.Add(1)
	case SourceBypass:
		s.bypass.Add(1)
		return
	case SourceNone:
		s.none.Add(1)
		return
	}

	n := uint64(len(res.Entry.Body))
	s.totalResponses.Add(1)
	s.totalRespBytes.Add(n)
	for {
		cur := s.minRespBytes.Load()
		if n >= cur || s.minRespBytes.CompareAndSwap(cur, n) {
			break
		}
	}
	for {
		cur := s.maxRespBytes.Load()
		if n <= cur || s.maxRespBytes.CompareAndSwap(cur, n) {
			break
		}
	}
}

func (s *statsCollector) writeStored()  { s.stored.Add(1) }
func (s *statsCollector) writeFailed()  { s.failed.Add(1) }
func (s *statsCollector) writeSkipped() { s.skipped.Add(1) }

type Stats struct {
	Network, Cache, Offline, Bypass, None uint64

	WritesStored, WritesFailed, WritesSkipped uint64

	TotalResponses uint64
	MinRespBytes   uint64
	MaxRespBytes   uint64
	AvgRespBytes   uint64
}

func (s *statsCollector) snapshot() Stats {
	out := Stats{
		Network:        s.network.Load(),
		Cache:          s.cache.Load(),
		Offline:        s.offline.Load(),
		Bypass:         s.bypass.Load(),
		None:           s.none.Load(),
		WritesStored:   s.stored.Load(),
		WritesFailed:   s.failed.Load(),
		WritesSkipped:  s.skipped.Load(),
		TotalResponses: s.totalResponses.Load(),
	}
	if out.TotalResponses == 0 {
		return out
	}
	out.MinRespBytes = s.minRespBytes.Load()
	out.MaxRespBytes = s.maxRespBytes.Load()
	out.AvgRespBytes = s.totalRespBytes.Load() / out.TotalResponses
	return out
}

// Stats returns counters since the router was created.
func (r *Router) Stats() Stats { return r.stats.snapshot() }

func (r *Router) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-t.C:
			ss := r.stats.snapshot()
			fields := []zap.Field{
				zap.Int("entries", r.store.EntryCount()),
				zap.String("ram", formatBytes(uint64(r.store.RAMBytes()))),
				zap.String("respMinAvgMax", fmt.Sprintf("%s/%s/%s",
					formatBytes(ss.MinRespBytes), formatBytes(ss.AvgRespBytes), formatBytes(ss.MaxRespBytes))),
				zap.Uint64("network", ss.Network),
				zap.Uint64("cache", ss.Cache),
				zap.Uint64("offline", ss.Offline),
				zap.Uint64("bypass", ss.Bypass),
				zap.Uint64("none", ss.None),
				zap.Uint64("writesFailed", ss.WritesFailed),
			}
			if rss, ok := processRSSBytes(); ok {
				fields = append(fields, zap.String("rss", formatBytes(rss)))
			}
			r.log.Info("cache stats", fields...)
		}
	}
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	if b < kb {
		return fmt.Sprintf("%db", b)
	}
	if b < mb {
		return trimFloat(fmt.Sprintf("%.1f", float64(b)/kb)) + "kb"
	}
	if b < gb {
		return trimFloat(fmt.Sprintf("%.1f", float64(b)/mb)) + "mb"
	}
	return trimFloat(fmt.Sprintf("%.1f", float64(b)/gb)) + "gb"
}

func trimFloat(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), ".0")
}
