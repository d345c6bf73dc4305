// Package main provides the graphkv CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/graphkv/pkg/config"
	"github.com/orneryd/graphkv/pkg/database"
	"github.com/orneryd/graphkv/pkg/graph"
	"github.com/orneryd/graphkv/pkg/txn"
)

var version = "0.1.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphkv",
		Short: "graphkv - a typed-graph transactional store over an ordered KV engine",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "graphkv.yaml", "path to a YAML config overlay")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("graphkv v%s\n", version)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init <dir>",
		Short: "Initialize a new database, bootstrapping its root types",
		Args:  cobra.ExactArgs(1),
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema <dir>",
		Short: "Print the schema graph",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchema,
	}
	rootCmd.AddCommand(schemaCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg := config.DefaultConfig()
	if err := config.MergeYAMLFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cfg.LoadFromEnv()
	return cfg
}

func openDatabase(dir string) (*database.Database, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	cfg := loadConfig()
	cfg.Database.DataDir = dir
	return database.Open(cfg.Database)
}

// rootTypes are the five well-known root vertices every kind's SUB-closure
// terminates at.
var rootTypes = []struct {
	id    graph.VertexID
	kind  graph.Kind
	label string
}{
	{graph.RootThingID, graph.KindThingType, "thing"},
	{graph.RootEntityID, graph.KindEntityType, "entity"},
	{graph.RootAttributeID, graph.KindAttributeType, "attribute"},
	{graph.RootRelationID, graph.KindRelationType, "relation"},
	{graph.RootRoleID, graph.KindRoleType, "role"},
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := args[0]
	db, err := openDatabase(dir)
	if err != nil {
		return err
	}
	defer db.Close()

	sess := database.NewSession(db, database.SchemaSession)
	defer sess.Close()

	tx, err := sess.Transaction(txn.Write, config.TransactionConfig{})
	if err != nil {
		return err
	}
	store, err := tx.Store()
	if err != nil {
		return err
	}
	for _, rt := range rootTypes {
		if err := store.CreateVertex(&graph.Vertex{ID: rt.id, Kind: rt.kind, Label: rt.label, IsRoot: true, IsAbstract: true}); err != nil {
			return fmt.Errorf("bootstrapping %s: %w", rt.label, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema bootstrap: %w", err)
	}

	fmt.Printf("initialized graphkv database in %s\n", dir)
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	dir := args[0]
	db, err := openDatabase(dir)
	if err != nil {
		return err
	}
	defer db.Close()

	sess := database.NewSession(db, database.SchemaSession)
	defer sess.Close()

	tx, err := sess.Transaction(txn.Read, config.TransactionConfig{})
	if err != nil {
		return err
	}
	defer tx.Close()

	store, err := tx.Store()
	if err != nil {
		return err
	}

	for _, rt := range rootTypes {
		root, err := store.GetVertex(rt.id)
		if err != nil {
			continue
		}
		printSubtree(store, root, 0)
	}
	return nil
}

func printSubtree(store *graph.Store, v *graph.Vertex, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	label := v.Label
	if label == "" {
		label = string(v.ID)
	}
	fmt.Printf("%s%s (%s)\n", indent, label, v.Kind)

	children, err := store.Ins(graph.EdgeSub, v.ID)
	if err != nil {
		return
	}
	for _, childID := range children {
		child, err := store.GetVertex(childID)
		if err != nil {
			continue
		}
		printSubtree(store, child, depth+1)
	}
}
