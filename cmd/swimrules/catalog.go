package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"swim-rules-rag/internal/database"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Query the SQLite rule catalog and scenario log",
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Find rules by number, title or section",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogSearch,
}

var catalogGetCmd = &cobra.Command{
	Use:   "get [rule-number]",
	Short: "Show one rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogGet,
}

var catalogScenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List recently analyzed scenarios",
	RunE:  runCatalogScenarios,
}

func init() {
	catalogSearchCmd.Flags().Int("limit", 20, "maximum number of rules")
	catalogScenariosCmd.Flags().Int("limit", 10, "maximum number of scenarios")

	catalogCmd.AddCommand(catalogSearchCmd, catalogGetCmd, catalogScenariosCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	catalog, err := database.NewCatalog(cmd.Context(), cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer catalog.Close()

	records, err := catalog.SearchRules(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No rules match %q\n", args[0])
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tTITLE\tCATEGORY\tSTROKE\tPAGE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.RuleNumber, r.RuleTitle, r.Category, r.StrokeType, r.Page)
	}
	return tw.Flush()
}

func runCatalogGet(cmd *cobra.Command, args []string) error {
	catalog, err := database.NewCatalog(cmd.Context(), cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer catalog.Close()

	r, err := catalog.GetRule(cmd.Context(), args[0])
	if errors.Is(err, database.ErrNotFound) {
		fmt.Printf("Rule %s is not in the catalog\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Rule %s: %s\n", r.RuleNumber, r.RuleTitle)
	fmt.Printf("  ID:       %s\n", r.RuleID)
	fmt.Printf("  Category: %s\n", r.Category)
	fmt.Printf("  Stroke:   %s\n", orDefault(string(r.StrokeType), "none"))
	fmt.Printf("  Section:  %s\n", r.Section)
	fmt.Printf("  Page:     %d (%s)\n", r.Page, r.Source)
	return nil
}

func runCatalogScenarios(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	catalog, err := database.NewCatalog(cmd.Context(), cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer catalog.Close()

	records, err := catalog.RecentScenarios(cmd.Context(), limit)
	if err != nil {
		return err
	}

	for _, rec := range records {
		fmt.Printf("%s  %-16s  %.2f  %s\n", rec.CreatedAt, rec.Decision, rec.ConfidenceScore, rec.Scenario)
		if len(rec.RuleCitations) > 0 {
			fmt.Printf("    rules: %s\n", strings.Join(rec.RuleCitations, ", "))
		}
	}
	return nil
}
