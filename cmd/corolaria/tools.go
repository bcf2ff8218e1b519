package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhanii/corolaria/internal/embedcache"
)

var topK int

// searchCmd embeds the query and runs a similarity search over the article
// index.
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search over ingested articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		svc, err := buildServices(buildOpts{queryTask: true})
		if err != nil {
			return err
		}
		defer svc.Close()

		vec, err := svc.provider.Embed(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to embed query: %w", err)
		}

		hits, err := svc.store.VectorSearch(vec, topK, cfg.Graph.VectorIndexName)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println("No results.")
			return nil
		}

		type result struct {
			NodeID     string  `json:"node_id"`
			Similarity float64 `json:"similarity"`
			DocumentID string  `json:"document_id,omitempty"`
			Path       string  `json:"path,omitempty"`
		}
		results := make([]result, 0, len(hits))
		for _, h := range hits {
			r := result{NodeID: h.NodeID, Similarity: h.Similarity}
			row, err := svc.store.RunQuerySingle(
				`SELECT document_id, json_extract(props, '$.path') AS path FROM nodes WHERE id = ?`, h.NodeID)
			if err == nil && row != nil {
				r.DocumentID, _ = row["document_id"].(string)
				r.Path, _ = row["path"].(string)
			}
			results = append(results, r)
		}
		return emitJSON(results, outputJSON)
	},
}

// statsCmd prints graph and cache counters.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph and embedding-cache counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(buildOpts{storeOnly: true})
		if err != nil {
			return err
		}
		defer svc.Close()

		stats, err := svc.store.Stats()
		if err != nil {
			return err
		}

		out := map[string]interface{}{"graph": stats}
		if cfg.Cache.Enabled {
			if cache, err := embedcache.Open(cfg.Cache.Path, cfg.Embedding.Dimensions); err == nil {
				if n, err := cache.Size(); err == nil {
					out["cache_entries"] = n
				}
				cache.Close()
			}
		}
		return emitJSON(out, outputJSON)
	},
}

var pruneAge time.Duration

// cacheCmd groups embedding-cache maintenance.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Embedding cache maintenance",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cache entries older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := embedcache.Open(cfg.Cache.Path, cfg.Embedding.Dimensions)
		if err != nil {
			return fmt.Errorf("failed to open embedding cache: %w", err)
		}
		defer cache.Close()

		pruned, err := cache.PruneOlderThan(pruneAge)
		if err != nil {
			return err
		}
		logger.Info("Cache pruned", zap.Int64("entries_removed", pruned), zap.Duration("older_than", pruneAge))
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&topK, "top-k", 10, "Number of results to return")
	cachePruneCmd.Flags().DurationVar(&pruneAge, "older-than", 30*24*time.Hour, "Minimum entry age to prune")
	cacheCmd.AddCommand(cachePruneCmd)
}
