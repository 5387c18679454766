package recommend

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kudosu/internal/logging"
	"kudosu/internal/metrics"
	"kudosu/internal/model"
	"kudosu/internal/mods"
	"kudosu/internal/osuapi"
	"kudosu/internal/pp"
	"kudosu/internal/store"
)

// RelationshipStore is the query surface of the sharded edge store.
type RelationshipStore interface {
	TopRelated(ctx context.Context, beatmapID int64, modstr string, limit int) ([]store.Row, error)
	TopRelatedForSeeds(ctx context.Context, seeds []store.Seed, limit int, modFilter string) ([]store.Row, error)
}

// ChartCache resolves a beatmap id to a local chart file.
type ChartCache interface {
	Ensure(ctx context.Context, beatmapID int64) (string, error)
}

// Merge dedupes per-shard rows by (beatmap, mods), keeping the maximum
// relationship value for each key. Max, not sum: the result answers
// "how strongly is this related to any of my known maps". Output is
// sorted by relationship value descending.
func Merge(rows []store.Row) []model.Candidate {
	type key struct {
		id   int64
		mods string
	}
	best := make(map[key]float64)
	for _, r := range rows {
		k := key{r.BeatmapID, r.Mods}
		if r.Value > best[k] {
			best[k] = r.Value
		}
	}
	out := make([]model.Candidate, 0, len(best))
	for k, v := range best {
		out = append(out, model.Candidate{BeatmapID: k.id, Mods: k.mods, Relationship: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relationship > out[j].Relationship })
	return out
}

// Related is the single-map query path: related candidates for one
// (beatmap, mods) pair, no filtering or simulation.
func Related(ctx context.Context, st RelationshipStore, beatmapID int64, modstr string, limit int) ([]model.Candidate, error) {
	rows, err := st.TopRelated(ctx, beatmapID, modstr, limit)
	if err != nil {
		return nil, err
	}
	return Merge(rows), nil
}

// Deps bundles the collaborators of the recommendation pipeline.
type Deps struct {
	Store  RelationshipStore
	API    osuapi.ScoreAPI
	Charts ChartCache
	Sim    pp.Simulator
	// Per-shard row cap and final result cap.
	ShardLimit  int
	ResultLimit int
}

// ForPlayer runs the full pipeline for one player: fetch the live best
// list, query related edges for every seed, merge, filter redundant
// variants, simulate pp for survivors, and keep only candidates that
// would actually enter the player's top 100.
func (d Deps) ForPlayer(ctx context.Context, playerID int64, ruleset model.Ruleset, modFilter string) ([]model.Candidate, error) {
	start := time.Now()
	best, err := d.API.FetchBestScores(ctx, playerID, ruleset)
	if err != nil {
		return nil, fmt.Errorf("fetch best list: %w", err)
	}
	if len(best) == 0 {
		return nil, fmt.Errorf("player %d has no best scores", playerID)
	}

	seeds := make([]store.Seed, 0, len(best))
	known := make(map[store.Seed]struct{}, len(best))
	for _, s := range best {
		seed := store.Seed{BeatmapID: s.BeatmapID, Mods: s.Mods}
		seeds = append(seeds, seed)
		known[seed] = struct{}{}
	}
	rows, err := d.Store.TopRelatedForSeeds(ctx, seeds, d.ShardLimit, modFilter)
	if err != nil {
		return nil, err
	}
	candidates := Merge(rows)

	// The best list arrives sorted by pp descending, so the entry bar
	// is its last element. Strictly greater: matching the current
	// floor would not enter the list.
	floor := best[len(best)-1].PP

	var survivors []model.Candidate
	for _, c := range candidates {
		if _, ok := known[store.Seed{BeatmapID: c.BeatmapID, Mods: c.Mods}]; ok {
			continue
		}
		if redundantVariant(c, best) {
			continue
		}
		survivors = append(survivors, c)
	}

	// Chart download and pp simulation are independent per candidate,
	// so they run in a bounded worker pool; a failed candidate is
	// skipped, never fatal.
	var mu sync.Mutex
	var out []model.Candidate
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for _, c := range survivors {
		eg.Go(func() error {
			path, err := d.Charts.Ensure(gctx, c.BeatmapID)
			if err != nil {
				logging.Warn("chart_unavailable", map[string]any{"beatmap_id": c.BeatmapID, "error": err.Error()})
				return nil
			}
			mask, err := mods.Bitmask(c.Mods)
			if err != nil {
				logging.Warn("bad_candidate_mods", map[string]any{"beatmap_id": c.BeatmapID, "mods": c.Mods})
				return nil
			}
			simPP, err := d.Sim.SimulateMaxPP(gctx, path, mods.FoldNightcore(mask), ruleset)
			if err != nil {
				logging.Warn("simulation_failed", map[string]any{"beatmap_id": c.BeatmapID, "error": err.Error()})
				return nil
			}
			if simPP <= floor {
				return nil
			}
			c.SimulatedPP = simPP
			mu.Lock()
			out = append(out, c)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Final order is by achievable pp; the relationship value rides
	// along as an "ease" signal.
	sort.Slice(out, func(i, j int) bool { return out[i].SimulatedPP > out[j].SimulatedPP })
	if d.ResultLimit > 0 && len(out) > d.ResultLimit {
		out = out[:d.ResultLimit]
	}
	metrics.RecommendDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

// redundantVariant reports whether a candidate is a trivial mod variant
// of a map the player already has:
//   - an HR score makes every non-DT candidate on that map redundant
//     (HR without DT is strictly easier than what they already did);
//   - any DT score makes all same-map candidates redundant;
//   - equal mod strings after stripping HD/CL are the same difficulty.
func redundantVariant(c model.Candidate, best []model.Score) bool {
	for _, s := range best {
		if s.BeatmapID != c.BeatmapID {
			continue
		}
		if mods.Contains(s.Mods, "HR") && !mods.Contains(c.Mods, "DT") {
			return true
		}
		if mods.Contains(s.Mods, "DT") {
			return true
		}
		if mods.StripDifficultyNeutral(c.Mods) == mods.StripDifficultyNeutral(s.Mods) {
			return true
		}
	}
	return false
}
