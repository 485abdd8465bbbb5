package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/catalog"
	"github.com/adaptation-atlas/atlas-assistant/internal/embeddings"
	"github.com/adaptation-atlas/atlas-assistant/internal/query"
	"github.com/adaptation-atlas/atlas-assistant/internal/vectorstore"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Inspect and index the STAC catalog",
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the parquet datasets of the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, err := catalog.LoadDir(cfg.Catalog.STACDir)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tHREF")
		for _, ds := range cat.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", ds.ID(), ds.Item.Properties.Title, ds.Href())
		}
		return tw.Flush()
	},
}

var datasetsDescribeCmd = &cobra.Command{
	Use:   "describe <id>",
	Short: "Print a dataset's description and column schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, err := catalog.LoadDir(cfg.Catalog.STACDir)
		if err != nil {
			return err
		}
		ds, ok := cat.Get(args[0])
		if !ok {
			return fmt.Errorf("dataset %q not found", args[0])
		}
		engine, err := query.NewSQLiteEngine(cfg.Storage)
		if err != nil {
			return err
		}
		defer engine.Close()

		schema, err := catalog.SchemaTable(cmd.Context(), ds, ds.Href(), engine)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n\nHref: %s\n", ds.Describe(), ds.Href())
		if s3 := ds.S3Href(); s3 != "" {
			fmt.Fprintf(out, "S3: %s\n", s3)
		}
		fmt.Fprintf(out, "\n%s\n", schema)
		return nil
	},
}

var datasetsFetchCmd = &cobra.Command{
	Use:   "fetch [catalog-url]",
	Short: "Download the parquet items of a remote STAC catalog into STAC_DIR",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		root := cfg.Catalog.RootURL
		if len(args) == 1 {
			root = args[0]
		}
		log.Info().Str("url", root).Str("dir", cfg.Catalog.STACDir).Msg("🛰️ Fetching STAC catalog")

		client := &http.Client{Timeout: cfg.Storage.FetchTimeout}
		res, err := catalog.NewHarvester(client, cfg.Catalog.STACDir).Harvest(cmd.Context(), root)
		if err != nil {
			return err
		}
		log.Info().
			Int("catalogs", res.Catalogs).
			Int("items", res.Items).
			Int("written", res.Written).
			Dur("elapsed", res.Elapsed).
			Msg("✅ STAC catalog fetched")
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d of %d items into %s\n", res.Written, res.Items, cfg.Catalog.STACDir)
		return nil
	},
}

var datasetsIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed every catalog dataset into the vector store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		emb, err := embeddings.New(cfg.Embeddings)
		if err != nil {
			return err
		}

		// The embedded snapshot is rebuilt from scratch.
		var index contracts.VectorStoreDriver = vectorstore.NewEmbeddedStore()
		if cfg.VectorStore.Kind != "embedded" {
			store, closeStore, err := vectorstore.Open(cmd.Context(), cfg, emb.Dimensions())
			if err != nil {
				return err
			}
			defer closeStore()
			index = store
		}

		res, err := server.BuildIndex(cmd.Context(), cfg, emb, index)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d datasets (%d vectors) in %s\n",
			res.Datasets, res.Vectors, res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	datasetsCmd.AddCommand(datasetsFetchCmd)
	datasetsCmd.AddCommand(datasetsListCmd)
	datasetsCmd.AddCommand(datasetsDescribeCmd)
	datasetsCmd.AddCommand(datasetsIndexCmd)
}
