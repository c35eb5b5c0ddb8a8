package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rushteam/insurekit/config"
	"github.com/rushteam/insurekit/docstore"
)

var dumpFlags struct {
	uri        string
	database   string
	collection string
	batchSize  int
}

var dataDumpCmd = &cobra.Command{
	Use:   "datadump [dataset.csv]",
	Short: "Load a CSV dataset into MongoDB, one document per row",
	Long: `Inserts every row of the CSV file as a document into <database>.<collection>.
The connection string is read from --uri, datadump.uri or $` + config.MongoURIEnv + `.

Example:
  ` + config.MongoURIEnv + `=mongodb://localhost:27017 insurekit datadump insurance.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runDataDump,
}

func init() {
	f := dataDumpCmd.Flags()
	f.StringVar(&dumpFlags.uri, "uri", "", "MongoDB connection string")
	f.StringVar(&dumpFlags.database, "database", "", "Target database (default "+docstore.DefaultDatabase+")")
	f.StringVar(&dumpFlags.collection, "collection", "", "Target collection (default "+docstore.DefaultCollection+")")
	f.IntVar(&dumpFlags.batchSize, "batch-size", 0, "Documents per insert")
}

func runDataDump(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("uri") {
		cfg.DataDump.URI = dumpFlags.uri
	}
	if flags.Changed("database") {
		cfg.DataDump.Database = dumpFlags.database
	}
	if flags.Changed("collection") {
		cfg.DataDump.Collection = dumpFlags.collection
	}
	if flags.Changed("batch-size") && dumpFlags.batchSize > 0 {
		cfg.DataDump.BatchSize = dumpFlags.batchSize
	}
	if cfg.DataDump.URI == "" {
		return fmt.Errorf("mongo uri is required: pass --uri, set datadump.uri or $%s", config.MongoURIEnv)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	ds, err := docstore.NewMongoStore(ctx, docstore.MongoConfig{URI: cfg.DataDump.URI, Timeout: cfg.DataDump.Timeout})
	if err != nil {
		return err
	}
	defer ds.Close(context.Background())

	n, err := docstore.Dump(ctx, ds, args[0], cfg.DumpOptions(logger))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "inserted %d documents into %s.%s\n", n, cfg.DataDump.Database, cfg.DataDump.Collection)
	return nil
}
