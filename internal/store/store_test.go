package store

import (
	"context"
	"testing"

	"kudosu/internal/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestShardIndexDeterministic(t *testing.T) {
	if ShardIndex(10, 20) != 0 {
		t.Fatalf("(10+20)%%10 must be 0, got %d", ShardIndex(10, 20))
	}
	if ShardIndex(3, 4) != ShardIndex(3, 4) {
		t.Fatal("shard assignment must be stable")
	}
	for lo := int64(0); lo < 25; lo++ {
		for hi := lo; hi < 25; hi++ {
			idx := ShardIndex(lo, hi)
			if idx < 0 || idx >= ShardCount {
				t.Fatalf("shard index out of range: %d", idx)
			}
		}
	}
}

func TestBestScoreDedup(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	s := model.Score{PlayerID: 1, BeatmapID: 10, Mods: "HD", BPPosition: 0, PP: 100}
	if err := db.InsertBestScores(ctx, []model.Score{s}); err != nil {
		t.Fatal(err)
	}
	ok, err := db.HasBestScore(ctx, 1, 10, "HD")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected stored record")
	}
	ok, err = db.HasBestScore(ctx, 1, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("different mods must be a different record")
	}
}

func TestPlayerRoundtrip(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	in := []model.Score{
		{PlayerID: 7, BeatmapID: 20, Mods: "", BPPosition: 1, PP: 90},
		{PlayerID: 7, BeatmapID: 10, Mods: "HD", BPPosition: 0, PP: 120},
	}
	if err := db.InsertBestScores(ctx, in); err != nil {
		t.Fatal(err)
	}
	ids, err := db.PlayerIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("got %v", ids)
	}
	got, err := db.PlayerBest(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].BPPosition != 0 || got[1].BPPosition != 1 {
		t.Fatalf("expected position order, got %+v", got)
	}
}

func edges(v float64) map[model.PairKey]float64 {
	return map[model.PairKey]float64{
		{LoID: 10, HiID: 20, LoMods: "", HiMods: "HD"}: v,
	}
}

func TestFlushAndQueryBothDirections(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	if err := db.FlushEdges(ctx, edges(3.5)); err != nil {
		t.Fatal(err)
	}
	// lo side query sees the hi side.
	rows, err := db.TopRelated(ctx, 10, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].BeatmapID != 20 || rows[0].Mods != "HD" || rows[0].Value != 3.5 {
		t.Fatalf("got %+v", rows)
	}
	// hi side query sees the lo side (symmetric lookup).
	rows, err = db.TopRelated(ctx, 20, "HD", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].BeatmapID != 10 || rows[0].Mods != "" {
		t.Fatalf("got %+v", rows)
	}
}

func TestFlushAccumulatesOnConflict(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	if err := db.FlushEdges(ctx, edges(1.5)); err != nil {
		t.Fatal(err)
	}
	if err := db.FlushEdges(ctx, edges(2.0)); err != nil {
		t.Fatal(err)
	}
	rows, err := db.TopRelated(ctx, 10, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Value != 3.5 {
		t.Fatalf("expected accumulated 3.5, got %v", rows[0].Value)
	}
}

func TestFlushRejectsNonCanonicalPair(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	bad := map[model.PairKey]float64{{LoID: 20, HiID: 10}: 1}
	if err := db.FlushEdges(ctx, bad); err == nil {
		t.Fatal("expected error for lo > hi")
	}
}

func TestTopRelatedForSeedsModFilter(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	acc := map[model.PairKey]float64{
		{LoID: 10, HiID: 20, LoMods: "", HiMods: "HD"}: 2,
		{LoID: 10, HiID: 30, LoMods: "", HiMods: ""}:   3,
	}
	if err := db.FlushEdges(ctx, acc); err != nil {
		t.Fatal(err)
	}
	seeds := []Seed{{BeatmapID: 10, Mods: ""}}
	rows, err := db.TopRelatedForSeeds(ctx, seeds, 10, "HD")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].BeatmapID != 20 {
		t.Fatalf("mod filter not applied: %+v", rows)
	}
}

func TestPerShardLimit(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	// Hi ids spaced by ShardCount keep every edge in the same shard.
	acc := make(map[model.PairKey]float64)
	for i := 0; i < 5; i++ {
		hi := int64(20 + i*ShardCount)
		acc[model.PairKey{LoID: 10, HiID: hi, LoMods: "", HiMods: ""}] = float64(i + 1)
	}
	if err := db.FlushEdges(ctx, acc); err != nil {
		t.Fatal(err)
	}
	rows, err := db.TopRelated(ctx, 10, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("per-shard cap not applied: %d rows", len(rows))
	}
	// Capped rows must be the strongest ones.
	if rows[0].Value != 5 || rows[1].Value != 4 {
		t.Fatalf("expected top values, got %+v", rows)
	}
}

func TestClearRelationships(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	if err := db.FlushEdges(ctx, edges(1)); err != nil {
		t.Fatal(err)
	}
	if err := db.ClearRelationships(ctx); err != nil {
		t.Fatal(err)
	}
	rows, err := db.TopRelated(ctx, 10, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty store, got %+v", rows)
	}
}

func TestShardStats(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	if err := db.FlushEdges(ctx, edges(2.5)); err != nil {
		t.Fatal(err)
	}
	stats, err := db.ShardStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != ShardCount {
		t.Fatalf("expected %d shards, got %d", ShardCount, len(stats))
	}
	idx := ShardIndex(10, 20)
	if stats[idx].Edges != 1 || stats[idx].MaxValue != 2.5 {
		t.Fatalf("got %+v", stats[idx])
	}
}
