package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"kudosu/internal/analytics"
	"kudosu/internal/beatmap"
	"kudosu/internal/cmdlog"
	"kudosu/internal/config"
	"kudosu/internal/graph"
	"kudosu/internal/jobs"
	"kudosu/internal/metrics"
	"kudosu/internal/model"
	"kudosu/internal/mods"
	"kudosu/internal/osuapi"
	"kudosu/internal/pp"
	"kudosu/internal/recommend"
	"kudosu/internal/store"
	"kudosu/internal/theme"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	metrics.StartServer("")
	switch cmd {
	case "init":
		cmdInit()
	case "crawl":
		cmdCrawl()
	case "aggregate":
		cmdAggregate()
	case "related":
		cmdRelated()
	case "recommend":
		cmdRecommend()
	case "stats":
		cmdStats()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: kudosu <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./kudosu.yaml")
	fmt.Println("  crawl       Ingest players' best lists from the ranking")
	fmt.Println("  aggregate   Rebuild the beatmap relationship graph")
	fmt.Println("  related     Show maps related to one beatmap")
	fmt.Println("  recommend   Recommend maps for a player's skill level")
	fmt.Println("  stats       Show relationship shard statistics")
}

func fatal(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	return cfg
}

func mustRuleset(cfg config.Config, override string) model.Ruleset {
	s := cfg.Mode
	if override != "" {
		s = override
	}
	rs, err := model.ParseRuleset(s)
	if err != nil {
		fatal(err)
	}
	return rs
}

func mustOpenStore(cfg config.Config) *store.DB {
	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		fatal(err)
	}
	return db
}

func newClient(cfg config.Config) *osuapi.Client {
	if cfg.Credentials.ClientID == 0 || cfg.Credentials.ClientSecret == "" {
		fmt.Println("warning: missing OSU_CLIENT_ID/OSU_CLIENT_SECRET; API calls will fail")
	}
	return osuapi.NewClient(cfg.Credentials.ClientID, cfg.Credentials.ClientSecret)
}

func cmdInit() {
	out := flag.NewFlagSet("init", flag.ExitOnError)
	path := out.String("path", "./kudosu.yaml", "path to write config")
	_ = out.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fatal(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdCrawl() {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	cfgPath := fs.String("config", "./kudosu.yaml", "config path")
	mode := fs.String("mode", "", "ruleset override")
	first := fs.Int("first", 0, "first ranking page override")
	last := fs.Int("last", 0, "last ranking page override")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	rs := mustRuleset(cfg, *mode)
	db := mustOpenStore(cfg)
	defer db.Close()
	client := newClient(cfg)
	firstPage, lastPage := cfg.Crawl.FirstPage, cfg.Crawl.LastPage
	if *first > 0 {
		firstPage = *first
	}
	if *last > 0 {
		lastPage = *last
	}
	err := cmdlog.Run("crawl", func() error {
		return jobs.RunCrawl(context.Background(), db, client, rs, firstPage, lastPage)
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdAggregate() {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	cfgPath := fs.String("config", "./kudosu.yaml", "config path")
	workers := fs.Int("workers", runtime.NumCPU(), "parallel players")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	db := mustOpenStore(cfg)
	defer db.Close()
	err := cmdlog.Run("aggregate", func() error {
		return graph.Build(context.Background(), db, *workers)
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdRelated() {
	fs := flag.NewFlagSet("related", flag.ExitOnError)
	cfgPath := fs.String("config", "./kudosu.yaml", "config path")
	mapID := fs.Int64("map", 0, "beatmap id")
	modstr := fs.String("mods", "", "mod string of the seed score")
	limit := fs.Int("limit", 10, "per-shard row cap")
	_ = fs.Parse(os.Args[2:])
	if *mapID == 0 {
		fatal(fmt.Errorf("missing -map"))
	}
	normalized, err := mods.NormalizeString(*modstr)
	if err != nil {
		fatal(err)
	}
	cfg := loadConfig(*cfgPath)
	db := mustOpenStore(cfg)
	defer db.Close()
	err = cmdlog.Run("related", func() error {
		res, err := recommend.Related(context.Background(), db, *mapID, normalized, *limit)
		if err != nil {
			return err
		}
		if len(res) == 0 {
			fmt.Println("no related maps found")
			return nil
		}
		for _, c := range res {
			fmt.Printf("https://osu.ppy.sh/b/%d", c.BeatmapID)
			if c.Mods != "" {
				fmt.Printf("  +%s", c.Mods)
			}
			fmt.Printf("  value=%.2f\n", c.Relationship)
		}
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdRecommend() {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	cfgPath := fs.String("config", "./kudosu.yaml", "config path")
	player := fs.Int64("player", 0, "player id")
	mode := fs.String("mode", "", "ruleset override")
	modstr := fs.String("mods", "", "required candidate mods")
	_ = fs.Parse(os.Args[2:])
	if *player == 0 {
		fatal(fmt.Errorf("missing -player"))
	}
	modFilter, err := mods.NormalizeString(*modstr)
	if err != nil {
		fatal(err)
	}
	cfg := loadConfig(*cfgPath)
	rs := mustRuleset(cfg, *mode)
	db := mustOpenStore(cfg)
	defer db.Close()
	deps := recommend.Deps{
		Store:       db,
		API:         newClient(cfg),
		Charts:      beatmap.NewCache(cfg.Storage.MapDir),
		Sim:         pp.NewCommandSimulator(cfg.Simulator.Command),
		ShardLimit:  cfg.Recommend.ShardLimit,
		ResultLimit: cfg.Recommend.ResultLimit,
	}
	err = cmdlog.Run("recommend", func() error {
		res, err := deps.ForPlayer(context.Background(), *player, rs, modFilter)
		if err != nil {
			return err
		}
		if len(res) == 0 {
			fmt.Println("no recommendations; try widening the crawl or the limits")
			return nil
		}
		for _, c := range res {
			fmt.Printf("https://osu.ppy.sh/b/%d", c.BeatmapID)
			if c.Mods != "" {
				fmt.Printf("  +%s", c.Mods)
			}
			fmt.Printf("  pp=%.2f  ease=%.2f\n", c.SimulatedPP, c.Relationship)
		}
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cfgPath := fs.String("config", "./kudosu.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	db := mustOpenStore(cfg)
	defer db.Close()
	err := cmdlog.Run("stats", func() error {
		s, err := analytics.Summarize(context.Background(), db)
		if err != nil {
			return err
		}
		fmt.Print(analytics.Format(s))
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}
