// Package selection implements the provider selection engine (C2): given a
// stage, a requested tier, the offline policy, and the providers a category
// has on hand, it returns an ordered fallback chain plus a record
// explaining any downgrade.
//
// Selection is pure: it never calls a provider, never logs, and never
// mutates the registry. Grounded in the teacher's own conditional provider
// wiring in cmd/api/main.go (ElevenLabs-vs-Cartesia, Veo-vs-xAI), here
// generalized into a declared, testable policy instead of inline if/else.
package selection

import (
	"fmt"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

// Input bundles the selection engine's parameters for one stage/category
// decision.
type Input struct {
	Stage        model.Stage
	Category     model.ProviderCategory
	RequestedTier model.RequestedTier
	OfflineOnly  bool
	Available    []model.ProviderManifest
}

// Result is an ordered chain of provider names to try, plus the record
// explaining how it was derived.
type Result struct {
	Chain  []string
	Record model.SelectionRecord
}

// Select implements the rules of spec §4.2, in precedence order.
func Select(in Input) (Result, error) {
	tier := in.RequestedTier

	// Rule 1: offline + Pro is a hard fail-fast, no chain returned.
	if in.OfflineOnly && tier == model.RequestedTierPro {
		return Result{}, model.NewEngineError(
			model.ErrOfflineViolation,
			"",
			fmt.Sprintf("tier Pro requested under offline_only for stage %s", in.Stage),
			nil,
		)
	}

	downgradeReason := ""
	effectiveTier := tier
	// Rule 2: offline + ProIfAvailable downgrades to Free before selection.
	if in.OfflineOnly && tier == model.RequestedTierProIfAvailable {
		effectiveTier = model.RequestedTierFree
		downgradeReason = "offline"
	}

	byTier := func(t model.ProviderTier) []model.ProviderManifest {
		var out []model.ProviderManifest
		for _, m := range in.Available {
			if m.Tier == t {
				out = append(out, m)
			}
		}
		return out
	}

	// Rule 3: build candidate list by tier preference.
	var candidates []model.ProviderManifest
	switch effectiveTier {
	case model.RequestedTierPro:
		candidates = append(candidates, byTier(model.ProviderTierPro)...)
		candidates = append(candidates, byTier(model.ProviderTierLocal)...)
		candidates = append(candidates, byTier(model.ProviderTierFree)...)
	case model.RequestedTierProIfAvailable:
		candidates = append(candidates, byTier(model.ProviderTierPro)...)
		candidates = append(candidates, byTier(model.ProviderTierLocal)...)
		candidates = append(candidates, byTier(model.ProviderTierFree)...)
	case model.RequestedTierFree:
		candidates = append(candidates, byTier(model.ProviderTierFree)...)
		candidates = append(candidates, byTier(model.ProviderTierLocal)...)
	}

	// Rule 4: filter out online-required providers when offline.
	filtered := candidates[:0:0]
	for _, m := range candidates {
		if in.OfflineOnly && m.OnlineRequired {
			continue
		}
		filtered = append(filtered, m)
	}

	// Rule 5: dedupe while preserving order.
	seen := make(map[string]bool, len(filtered))
	var chain []string
	for _, m := range filtered {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		chain = append(chain, m.Name)
	}

	record := model.SelectionRecord{
		Stage:           in.Stage,
		Category:        in.Category,
		Chain:           chain,
		DowngradeReason: downgradeReason,
	}

	// Rule 6: empty chain fails.
	if len(chain) == 0 {
		return Result{}, model.NewEngineError(
			model.ErrNoProviderAvailable,
			"",
			fmt.Sprintf("no provider available for stage %s category %s under policy", in.Stage, in.Category),
			nil,
		)
	}

	record.Primary = chain[0]
	// A policy-forced downgrade (rule 2) is already known to be a fallback.
	// Whether the *runtime* primary ends up differing from chain[0] can only
	// be known once the orchestrator has actually attempted providers in
	// order (C2 itself makes no calls) — see FinalizeRecord.
	if downgradeReason != "" {
		record.IsFallback = true
		record.FallbackFrom = tier
	}

	return Result{Chain: chain, Record: record}, nil
}

// FinalizeRecord is called by the orchestrator once it knows which
// provider in the chain actually succeeded for the stage. If that provider
// is not the chain's original primary, the record is updated to reflect a
// runtime fallback: is_fallback=true, fallback_from names the tier that was
// originally requested for the stage. This is how scenario 2 in the
// testable-properties section ("Pro with automatic fallback") surfaces
// fallback_from=Pro even though the static chain's primary was itself a Pro
// provider that failed every retry.
func FinalizeRecord(record model.SelectionRecord, requestedTier model.RequestedTier, usedProvider string) model.SelectionRecord {
	if usedProvider != "" && usedProvider != record.Primary {
		record.IsFallback = true
		record.FallbackFrom = requestedTier
	}
	return record
}
