package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// sizeUnits are binary; the longest suffix is tried first.
var sizeUnits = []struct {
	suffix string
	mult   float64
}{
	{"kib", 1 << 10}, {"mib", 1 << 20}, {"gib", 1 << 30},
	{"kb", 1 << 10}, {"mb", 1 << 20}, {"gb", 1 << 30},
	{"k", 1 << 10}, {"m", 1 << 20}, {"g", 1 << 30},
	{"b", 1},
}

// parseBytes reads sizes like "512", "64k", "8 MiB" or "1.5m" for cache.ram.max.
func parseBytes(s string) (int64, error) {
	num := strings.ToLower(strings.TrimSpace(s))
	mult := 1.0
	for _, u := range sizeUnits {
		if strings.HasSuffix(num, u.suffix) {
			num = strings.TrimSpace(strings.TrimSuffix(num, u.suffix))
			mult = u.mult
			break
		}
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	n := v * mult
	switch {
	case v < 0:
		return 0, fmt.Errorf("negative size %q", s)
	case math.IsNaN(n) || n >= math.MaxInt64:
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(n), nil
}
