package sysprofile

import (
	"context"
	"testing"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

func TestDeriveTierBuckets(t *testing.T) {
	cases := []struct {
		cores int
		ram   float64
		want  model.SystemTier
	}{
		{16, 32, model.SystemTierS},
		{8, 16, model.SystemTierA},
		{4, 8, model.SystemTierB},
		{2, 4, model.SystemTierC},
		{1, 1, model.SystemTierD},
		{16, 2, model.SystemTierD}, // strong cores but weak RAM still bucket low
	}
	for _, c := range cases {
		got := deriveTier(model.SystemProfile{LogicalCores: c.cores, RAMGiB: c.ram})
		if got != c.want {
			t.Errorf("deriveTier(cores=%d, ram=%.0f) = %s, want %s", c.cores, c.ram, got, c.want)
		}
	}
}

func TestDetectReturnsAPopulatedProfile(t *testing.T) {
	profile := Detect(context.Background())
	if profile.LogicalCores < 0 {
		t.Errorf("expected a non-negative logical core count")
	}
	if profile.Tier == "" {
		t.Errorf("expected a derived tier")
	}
}
