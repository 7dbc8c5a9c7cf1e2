// Package sysprofile detects the host's SystemProfile (§3): logical and
// physical core counts and total RAM, read once at process start, plus a
// derived tier that gates default quality and selection defaults.
//
// Grounded on jmylchreest-tvarr's internal/daemon/stats.go StatsCollector,
// generalized from a recurring heartbeat sample into a single start-of-day
// detection (the engine's SystemProfile never changes mid-process).
package sysprofile

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

// Detect reads the host's core counts and RAM via gopsutil and derives a
// SystemProfile, including its tier. Any individual gopsutil call that
// fails leaves its field at zero rather than aborting detection — a
// degraded profile is preferable to none, and tier derivation treats
// zero/unknown fields conservatively (lower tier).
func Detect(ctx context.Context) model.SystemProfile {
	var profile model.SystemProfile

	if logical, err := cpu.CountsWithContext(ctx, true); err == nil {
		profile.LogicalCores = logical
	}
	if physical, err := cpu.CountsWithContext(ctx, false); err == nil {
		profile.PhysicalCores = physical
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		profile.RAMGiB = float64(vm.Total) / (1024 * 1024 * 1024)
	}

	profile.Tier = deriveTier(profile)
	return profile
}

// deriveTier buckets the host into S..D by logical cores and RAM, the
// threshold rule documented in DESIGN.md: tier gates default render
// quality and visuals concurrency, so it errs toward the lower tier
// whenever either dimension is weak.
func deriveTier(p model.SystemProfile) model.SystemTier {
	switch {
	case p.LogicalCores >= 16 && p.RAMGiB >= 32:
		return model.SystemTierS
	case p.LogicalCores >= 8 && p.RAMGiB >= 16:
		return model.SystemTierA
	case p.LogicalCores >= 4 && p.RAMGiB >= 8:
		return model.SystemTierB
	case p.LogicalCores >= 2 && p.RAMGiB >= 4:
		return model.SystemTierC
	default:
		return model.SystemTierD
	}
}
