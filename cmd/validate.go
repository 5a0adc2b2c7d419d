package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/simehr/simehr/sim"
)

var (
	validateCatalog string // content YAML; empty checks the built-in content
	validatePlan    string // optional plan checked against the content
)

// validateCmd checks content and plan files without running a session
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a content file and optional plan for errors",
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateFiles(validateCatalog, validatePlan, os.Stdout); err != nil {
			logrus.Fatalf("Validation failed: %v", err)
		}
	},
}

// validateFiles loads and cross-checks the files, then prints what they hold.
func validateFiles(catalogPath, planPath string, out io.Writer) error {
	bundle, err := loadBundle(catalogPath)
	if err != nil {
		return err
	}
	c := bundle.Content

	byCategory := make(map[sim.Category]int)
	for _, item := range c.Catalog {
		byCategory[item.Category]++
	}
	cats := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		cats = append(cats, string(cat))
	}
	sort.Strings(cats)

	source := catalogPath
	if source == "" {
		source = "built-in content"
	}
	fmt.Fprintf(out, "Content OK: %s\n", source)
	fmt.Fprintf(out, "  Catalog items      : %d\n", len(c.Catalog))
	for _, cat := range cats {
		fmt.Fprintf(out, "    %-17s: %d\n", cat, byCategory[sim.Category(cat)])
	}
	fmt.Fprintf(out, "  Patients           : %d\n", len(c.Patients))
	fmt.Fprintf(out, "  Scenario scripts   : %d\n", len(c.Scripts))
	fmt.Fprintf(out, "  Admission scripts  : %d\n", len(c.Admissions))
	fmt.Fprintf(out, "  Delay events       : %d\n", len(c.DelayEvents))
	fmt.Fprintf(out, "  Note templates     : %d\n", len(bundle.NoteTemplates))
	fmt.Fprintf(out, "  Smart phrases      : %d\n", len(bundle.SmartPhrases))

	if planPath == "" {
		return nil
	}
	plan, err := LoadPlan(planPath)
	if err != nil {
		return err
	}
	if err := plan.Validate(bundle); err != nil {
		return fmt.Errorf("plan %s: %w", planPath, err)
	}
	fmt.Fprintf(out, "Plan OK: %s (%d actions)\n", planPath, len(plan.Actions))
	return nil
}

func init() {
	validateCmd.Flags().StringVar(&validateCatalog, "catalog", "", "Content YAML to check; empty checks the built-in content")
	validateCmd.Flags().StringVar(&validatePlan, "plan", "", "Plan YAML to check against the content")
}
