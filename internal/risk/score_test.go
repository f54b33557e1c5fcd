package risk

import "testing"

func ptr(v int) *int { return &v }

func TestLevelBoundaries(t *testing.T) {
	cases := map[int]Level{
		1:  LevelLow,
		4:  LevelLow,
		5:  LevelMedium,
		11: LevelMedium,
		12: LevelHigh,
		19: LevelHigh,
		20: LevelCritical,
		25: LevelCritical,
		0:  LevelUndefined,
	}
	for besaran, want := range cases {
		if got := LevelFor(besaran); got != want {
			t.Fatalf("LevelFor(%d) = %q, want %q", besaran, got, want)
		}
	}
}

func TestScoreAllPairs(t *testing.T) {
	for i := MinFactor; i <= MaxFactor; i++ {
		for l := MinFactor; l <= MaxFactor; l++ {
			a := Score(ptr(i), ptr(l))
			if a.Besaran == nil || *a.Besaran != i*l {
				t.Fatalf("Score(%d,%d) besaran = %v", i, l, a.Besaran)
			}
			if a.Level != LevelFor(i*l) {
				t.Fatalf("Score(%d,%d) level = %q", i, l, a.Level)
			}
		}
	}
}

func TestScoreMissingOrOutOfRange(t *testing.T) {
	cases := []struct {
		impact, likelihood *int
	}{
		{nil, ptr(3)},
		{ptr(3), nil},
		{nil, nil},
		{ptr(0), ptr(3)},
		{ptr(6), ptr(1)},
		{ptr(2), ptr(-1)},
	}
	for _, tc := range cases {
		a := Score(tc.impact, tc.likelihood)
		if a.Besaran != nil || a.Level != LevelUndefined {
			t.Fatalf("expected undefined assessment, got %+v", a)
		}
	}
}
