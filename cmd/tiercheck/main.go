// cmd/tiercheck validates a tier catalog and checks that the SQL tables
// created by the server match the ent schema definitions.
//
// Phase 1 compiles the CUE catalog and runs every tier through the same
// validation UpsertTier applies. Phase 2 migrates a database (an in-memory
// SQLite one unless -dsn is given) and compares its columns against
// ent/schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/matthewbaird/followup/ent/schema"
	"github.com/matthewbaird/followup/internal/database"
	"github.com/matthewbaird/followup/internal/tiers"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("tiercheck: ")

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tiercheck", flag.ContinueOnError)
	fs.SetOutput(out)
	catalogPath := fs.String("catalog", "", "CUE tier catalog to validate (default: built-in catalog)")
	dsn := fs.String("dsn", ":memory:", "database to migrate and inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	src, name := tiers.DefaultCatalog, "catalog.cue"
	if *catalogPath != "" {
		b, err := os.ReadFile(*catalogPath)
		if err != nil {
			return fmt.Errorf("reading catalog: %w", err)
		}
		src, name = b, *catalogPath
	}

	fmt.Fprintf(out, "Phase 1: Validating tier catalog (%s)...\n", name)
	list, err := tiers.LoadCatalog(src, name)
	if err != nil {
		return fmt.Errorf("catalog validation failed: %w", err)
	}
	fmt.Fprintf(out, "  %d tiers validate.\n", len(list))

	fmt.Fprintln(out, "Phase 2: Checking database schema against ent/schema...")
	db, d, err := database.Open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	want := make(map[string][]string)
	for table, s := range schema.Tables() {
		want[table] = schema.Columns(s)
	}
	drift, err := database.CheckDrift(ctx, db, d, want)
	if err != nil {
		return err
	}
	if len(drift) > 0 {
		for _, line := range drift {
			fmt.Fprintf(out, "  %s\n", line)
		}
		return fmt.Errorf("%d schema differences", len(drift))
	}
	fmt.Fprintf(out, "  %d tables match.\n", len(want))

	fmt.Fprintln(out, "\ntiercheck: OK")
	return nil
}
