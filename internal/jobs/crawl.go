package jobs

import (
	"context"

	"kudosu/internal/logging"
	"kudosu/internal/metrics"
	"kudosu/internal/model"
	"kudosu/internal/osuapi"
	"kudosu/internal/store"
)

// RunCrawl walks the performance ranking pages and ingests every
// player's best list. The crawl is best-effort: a failed page or
// player is logged and skipped, never fatal. It is also resumable,
// because records already present for a (player, beatmap, mods) triple
// are not inserted again.
func RunCrawl(ctx context.Context, db *store.DB, api osuapi.ScoreAPI, ruleset model.Ruleset, firstPage, lastPage int) error {
	for page := firstPage; page <= lastPage; page++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		players, err := api.FetchRankingPage(ctx, ruleset, page)
		if err != nil {
			metrics.CrawlErrors.Inc()
			logging.Error("ranking_page_skip", map[string]any{"page": page, "error": err.Error()})
			continue
		}
		for _, uid := range players {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := crawlPlayer(ctx, db, api, ruleset, uid); err != nil {
				metrics.CrawlErrors.Inc()
				logging.Error("player_skip", map[string]any{"player_id": uid, "error": err.Error()})
				continue
			}
			metrics.CrawlPlayers.Inc()
		}
		logging.Info("ranking_page_done", map[string]any{"page": page, "players": len(players)})
	}
	return nil
}

// crawlPlayer fetches one player's best list and inserts the records
// not already stored, committed in a single transaction per player.
func crawlPlayer(ctx context.Context, db *store.DB, api osuapi.ScoreAPI, ruleset model.Ruleset, playerID int64) error {
	scores, err := api.FetchBestScores(ctx, playerID, ruleset)
	if err != nil {
		return err
	}
	fresh := make([]model.Score, 0, len(scores))
	for _, s := range scores {
		exists, err := db.HasBestScore(ctx, s.PlayerID, s.BeatmapID, s.Mods)
		if err != nil {
			return err
		}
		if !exists {
			fresh = append(fresh, s)
		}
	}
	if err := db.InsertBestScores(ctx, fresh); err != nil {
		return err
	}
	logging.Info("player_crawled", map[string]any{"player_id": playerID, "new_records": len(fresh)})
	return nil
}
