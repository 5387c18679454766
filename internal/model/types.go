package model

import "fmt"

// Ruleset is an osu! game mode as the API names it.
type Ruleset string

const (
	RulesetOsu   Ruleset = "osu"
	RulesetTaiko Ruleset = "taiko"
	RulesetCatch Ruleset = "fruits"
	RulesetMania Ruleset = "mania"
)

// ParseRuleset validates a mode string. Unsupported modes fail fast.
func ParseRuleset(s string) (Ruleset, error) {
	switch Ruleset(s) {
	case RulesetOsu, RulesetTaiko, RulesetCatch, RulesetMania:
		return Ruleset(s), nil
	}
	return "", fmt.Errorf("unsupported ruleset %q", s)
}

// Score is one entry of a player's best-performance list. Mods is the
// canonical normalized mod string (CL stripped). BPPosition is the
// 0-based rank within the player's top 100.
type Score struct {
	PlayerID   int64
	BeatmapID  int64
	Mods       string
	BPPosition int
	PP         float64
}

// PairKey identifies one relationship edge. LoID <= HiID always; the
// mod strings stay attached to their beatmap side.
type PairKey struct {
	LoID   int64
	HiID   int64
	LoMods string
	HiMods string
}

// Edge is a stored relationship row: the pair key plus its accumulated
// relationship value.
type Edge struct {
	PairKey
	Value float64
}

// Candidate is a query-time (beatmap, mods) proposal. Relationship is
// the maximum value observed across all edges linking it to any seed.
// SimulatedPP is filled by the recommendation pipeline only.
type Candidate struct {
	BeatmapID    int64
	Mods         string
	Relationship float64
	SimulatedPP  float64
}
