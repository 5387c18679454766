package analytics

import (
	"context"
	"fmt"
	"strings"

	"kudosu/internal/store"
)

// Summary describes the relationship store as a whole.
type Summary struct {
	Shards     []store.ShardStat
	TotalEdges int64
	MaxValue   float64
}

// Summarize collects per-shard statistics and totals.
func Summarize(ctx context.Context, db *store.DB) (Summary, error) {
	stats, err := db.ShardStats(ctx)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Shards: stats}
	for _, st := range stats {
		s.TotalEdges += st.Edges
		if st.MaxValue > s.MaxValue {
			s.MaxValue = st.MaxValue
		}
	}
	return s, nil
}

// Format renders a summary as a small fixed-width table.
func Format(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %12s %12s\n", "shard", "edges", "max value")
	for _, st := range s.Shards {
		fmt.Fprintf(&b, "%-6d %12d %12.2f\n", st.Index, st.Edges, st.MaxValue)
	}
	fmt.Fprintf(&b, "%-6s %12d %12.2f\n", "total", s.TotalEdges, s.MaxValue)
	return b.String()
}
