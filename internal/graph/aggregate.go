package graph

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"kudosu/internal/logging"
	"kudosu/internal/metrics"
	"kudosu/internal/model"
	"kudosu/internal/store"

	"golang.org/x/sync/errgroup"
)

// Contribution scores how plausibly two best-list entries sit at the
// same skill level: both terms are in (0,1], rewarding pairs the player
// achieves with similar pp and similar list rank.
func Contribution(a, b model.Score) float64 {
	ppDiff := math.Abs(a.PP - b.PP)
	bpDiff := math.Abs(float64(a.BPPosition - b.BPPosition))
	return 1/(1+ppDiff) + 1/(1+bpDiff)
}

// PairContributions enumerates every unordered pair of one player's
// records and returns their contributions keyed by canonical pair.
// Canonicalization puts the smaller beatmap id on the lo side; mods
// travel with their beatmap.
func PairContributions(scores []model.Score) map[model.PairKey]float64 {
	acc := make(map[model.PairKey]float64)
	for i := 0; i < len(scores); i++ {
		for j := i + 1; j < len(scores); j++ {
			a, b := scores[i], scores[j]
			if a.BeatmapID > b.BeatmapID {
				a, b = b, a
			}
			k := model.PairKey{LoID: a.BeatmapID, HiID: b.BeatmapID, LoMods: a.Mods, HiMods: b.Mods}
			acc[k] += Contribution(a, b)
		}
	}
	return acc
}

// Build recomputes the whole relationship graph: every player's pairs
// are accumulated in memory, the shards are truncated, and the summed
// values flushed. Truncate-then-flush makes reruns safe; flushing into
// a populated store would double every value.
//
// Players are independent units, so they are processed by a worker
// pool; only the merge into the shared accumulator is synchronized.
func Build(ctx context.Context, db *store.DB, workers int) error {
	start := time.Now()
	players, err := db.PlayerIDs(ctx)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	acc := make(map[model.PairKey]float64)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, id := range players {
		eg.Go(func() error {
			scores, err := db.PlayerBest(gctx, id)
			if err != nil {
				logging.Warn("aggregate_player_skip", map[string]any{"player_id": id, "error": err.Error()})
				return nil
			}
			local := PairContributions(scores)
			mu.Lock()
			for k, v := range local {
				acc[k] += v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := db.ClearRelationships(ctx); err != nil {
		return err
	}
	if err := db.FlushEdges(ctx, acc); err != nil {
		return err
	}
	metrics.ObserveAggregateDuration(start)
	logging.Info("aggregate_done", map[string]any{
		"players": len(players), "edges": len(acc), "seconds": time.Since(start).Seconds(),
	})
	return nil
}
