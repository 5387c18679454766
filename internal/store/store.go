package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"kudosu/internal/model"

	_ "modernc.org/sqlite"
)

// ShardCount is the fixed number of relationship partitions. A pair of
// beatmap ids always routes to (lo+hi) % ShardCount, so changing this
// constant invalidates every stored edge and requires a full rebuild.
const ShardCount = 10

// DB wraps the SQLite database holding best-score records and the
// sharded relationship graph.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS player_best (
	  player_id INTEGER NOT NULL,
	  beatmap_id INTEGER NOT NULL,
	  mods TEXT NOT NULL,
	  bp_position INTEGER NOT NULL,
	  pp REAL NOT NULL,
	  PRIMARY KEY (player_id, beatmap_id, mods, bp_position)
	);
	`)
	if err != nil {
		return err
	}
	for i := 0; i < ShardCount; i++ {
		t := shardTable(i)
		_, err := d.sql.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
		  id_lo INTEGER NOT NULL,
		  id_hi INTEGER NOT NULL,
		  mods_lo TEXT NOT NULL,
		  mods_hi TEXT NOT NULL,
		  value REAL NOT NULL,
		  PRIMARY KEY (id_lo, id_hi, mods_lo, mods_hi)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_lo ON %[1]s(id_lo, mods_lo, value DESC);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_hi ON %[1]s(id_hi, mods_hi, value DESC);
		`, t))
		if err != nil {
			return err
		}
	}
	return nil
}

// ShardIndex maps a canonical beatmap id pair to its partition.
func ShardIndex(lo, hi int64) int {
	return int((lo + hi) % ShardCount)
}

func shardTable(i int) string {
	return fmt.Sprintf("beatmap_relationship_%d", i)
}

// HasBestScore reports whether any record exists for the
// (player, beatmap, mods) triple, regardless of list position.
func (d *DB) HasBestScore(ctx context.Context, playerID, beatmapID int64, mods string) (bool, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT 1 FROM player_best WHERE player_id=? AND beatmap_id=? AND mods=? LIMIT 1`,
		playerID, beatmapID, mods)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InsertBestScores writes a batch of records in one transaction. The
// batch is expected to be one player's new records so transaction size
// stays bounded.
func (d *DB) InsertBestScores(ctx context.Context, scores []model.Score) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO player_best(player_id, beatmap_id, mods, bp_position, pp) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range scores {
		if _, err := stmt.ExecContext(ctx, s.PlayerID, s.BeatmapID, s.Mods, s.BPPosition, s.PP); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PlayerIDs returns every player with stored best scores.
func (d *DB) PlayerIDs(ctx context.Context) ([]int64, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT DISTINCT player_id FROM player_best ORDER BY player_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PlayerBest returns one player's stored records ordered by list position.
func (d *DB) PlayerBest(ctx context.Context, playerID int64) ([]model.Score, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT player_id, beatmap_id, mods, bp_position, pp FROM player_best WHERE player_id=? ORDER BY bp_position`,
		playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Score
	for rows.Next() {
		var s model.Score
		if err := rows.Scan(&s.PlayerID, &s.BeatmapID, &s.Mods, &s.BPPosition, &s.PP); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ClearRelationships empties every shard. Aggregation is full-replace:
// flushing into a non-empty store would double-count contributions.
func (d *DB) ClearRelationships(ctx context.Context) error {
	for i := 0; i < ShardCount; i++ {
		if _, err := d.sql.ExecContext(ctx, `DELETE FROM `+shardTable(i)); err != nil {
			return err
		}
	}
	return nil
}

// FlushEdges routes each accumulated pair to its shard and upserts the
// summed value. The accumulator is owned by the aggregation run and
// handed over here once, after all players are processed.
func (d *DB) FlushEdges(ctx context.Context, acc map[model.PairKey]float64) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmts := make([]*sql.Stmt, ShardCount)
	for i := 0; i < ShardCount; i++ {
		stmts[i], err = tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s(id_lo, id_hi, mods_lo, mods_hi, value) VALUES(?,?,?,?,?)
			 ON CONFLICT(id_lo, id_hi, mods_lo, mods_hi) DO UPDATE SET value = value + excluded.value`,
			shardTable(i)))
		if err != nil {
			return err
		}
		defer stmts[i].Close()
	}
	for k, v := range acc {
		if k.LoID > k.HiID {
			return fmt.Errorf("non-canonical pair (%d,%d)", k.LoID, k.HiID)
		}
		s := stmts[ShardIndex(k.LoID, k.HiID)]
		if _, err := s.ExecContext(ctx, k.LoID, k.HiID, k.LoMods, k.HiMods, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Seed is one (beatmap, mods) pair a relationship query starts from.
type Seed struct {
	BeatmapID int64
	Mods      string
}

// Row is the far side of an edge relative to the queried seed.
type Row struct {
	BeatmapID int64
	Mods      string
	Value     float64
}

// TopRelated returns, from every shard, the strongest edges touching
// (beatmapID, mods), capped at limit per shard. Both edge directions
// are queried; hi-side matches are flipped so the returned row is
// always the other beatmap.
func (d *DB) TopRelated(ctx context.Context, beatmapID int64, modstr string, limit int) ([]Row, error) {
	return d.TopRelatedForSeeds(ctx, []Seed{{BeatmapID: beatmapID, Mods: modstr}}, limit, "")
}

// TopRelatedForSeeds returns edges touching any seed, each shard
// independently capped at limit, optionally requiring the far side's
// mods to equal modFilter.
func (d *DB) TopRelatedForSeeds(ctx context.Context, seeds []Seed, limit int, modFilter string) ([]Row, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	var out []Row
	for i := 0; i < ShardCount; i++ {
		rows, err := d.queryShard(ctx, shardTable(i), seeds, limit, modFilter)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (d *DB) queryShard(ctx context.Context, table string, seeds []Seed, limit int, modFilter string) ([]Row, error) {
	loCond := make([]string, 0, len(seeds))
	hiCond := make([]string, 0, len(seeds))
	var loArgs, hiArgs []any
	for _, s := range seeds {
		loCond = append(loCond, `(id_lo=? AND mods_lo=?)`)
		loArgs = append(loArgs, s.BeatmapID, s.Mods)
		hiCond = append(hiCond, `(id_hi=? AND mods_hi=?)`)
		hiArgs = append(hiArgs, s.BeatmapID, s.Mods)
	}
	loFilter, hiFilter := "", ""
	if modFilter != "" {
		loFilter = ` AND mods_hi=?`
		loArgs = append(loArgs, modFilter)
		hiFilter = ` AND mods_lo=?`
		hiArgs = append(hiArgs, modFilter)
	}
	q := fmt.Sprintf(
		`SELECT bid, bmods, value FROM (
		   SELECT id_hi AS bid, mods_hi AS bmods, value FROM %[1]s WHERE (%[2]s)%[3]s
		   UNION ALL
		   SELECT id_lo AS bid, mods_lo AS bmods, value FROM %[1]s WHERE (%[4]s)%[5]s
		 ) ORDER BY value DESC LIMIT ?`,
		table, strings.Join(loCond, " OR "), loFilter, strings.Join(hiCond, " OR "), hiFilter)
	args := append(append(loArgs, hiArgs...), limit)
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.BeatmapID, &r.Mods, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ShardStat summarizes one relationship partition.
type ShardStat struct {
	Index    int
	Edges    int64
	MaxValue float64
}

// ShardStats returns edge counts and the strongest value per shard.
func (d *DB) ShardStats(ctx context.Context) ([]ShardStat, error) {
	out := make([]ShardStat, 0, ShardCount)
	for i := 0; i < ShardCount; i++ {
		row := d.sql.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(MAX(value), 0) FROM `+shardTable(i))
		st := ShardStat{Index: i}
		if err := row.Scan(&st.Edges, &st.MaxValue); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
