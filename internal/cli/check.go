package cli

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/operia/operia/internal/config"
	"github.com/operia/operia/internal/store"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"c", "health", "status"},
	Short:   "Zero-config health check",
	Long: `Perform a zero-config health check of the Operia system.

This command checks:
- Configuration validity
- Database connectivity
- Configured providers

Example:
  operia check`,
	RunE: runCheck,
}

func init() {
	RootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting health check...")
	}

	results := []CheckResult{}

	configResult, cfg := checkConfig()
	results = append(results, configResult)
	results = append(results, checkDatabase(cfg))
	results = append(results, checkProviders(cfg))

	return outputCheckResults(results)
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func checkConfig() (CheckResult, *config.Config) {
	result := CheckResult{
		Name:   "Configuration",
		Status: "OK",
	}

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		result.Status = "FAIL"
		result.Message = fmt.Sprintf("Failed to load configuration: %v", err)
		return result, nil
	}

	result.Message = fmt.Sprintf("Configuration valid (version: %s)", cfg.Version)
	result.Details = fmt.Sprintf("Server: %s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	return result, cfg
}

func checkDatabase(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:   "Database",
		Status: "OK",
	}

	dbPath := globalFlags.DBPath
	if dbPath == "" && cfg != nil {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		result.Status = "FAIL"
		result.Message = "No database path configured"
		return result
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		result.Status = "FAIL"
		result.Message = fmt.Sprintf("Failed to connect to database: %v", err)
		return result
	}
	defer s.Close()

	result.Message = fmt.Sprintf("Database connected successfully at: %s", dbPath)
	return result
}

func checkProviders(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:   "Providers",
		Status: "OK",
	}

	if cfg == nil {
		result.Status = "FAIL"
		result.Message = "Configuration unavailable"
		return result
	}

	configured := []string{}
	if cfg.Providers.Notion.ClientID != "" {
		configured = append(configured, "notion")
	}
	if cfg.Providers.GitHub.ClientID != "" {
		detail := "github"
		if cfg.Providers.GitHub.AppID != "" {
			detail = "github (app identity)"
		}
		configured = append(configured, detail)
	}

	if len(configured) == 0 {
		result.Status = "WARNING"
		result.Message = "No providers configured"
		return result
	}

	result.Message = fmt.Sprintf("%d providers configured", len(configured))
	result.Details = fmt.Sprintf("Providers: %v", configured)
	return result
}

func outputCheckResults(results []CheckResult) error {
	if globalFlags.JSON {
		return outputCheckResultsJSON(results)
	}
	return outputCheckResultsTable(results)
}

func outputCheckResultsJSON(results []CheckResult) error {
	encoder := newJSONEncoder()
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func outputCheckResultsTable(results []CheckResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE\tDETAILS")

	allPassed := true
	for _, r := range results {
		statusIcon := "✓"
		if r.Status == "FAIL" {
			statusIcon = "✗"
			allPassed = false
		} else if r.Status == "WARNING" {
			statusIcon = "!"
		}

		details := r.Details
		if details == "" {
			details = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Name,
			statusIcon+" "+r.Status,
			r.Message,
			details,
		)
	}

	if err := w.Flush(); err != nil {
		log.Printf("Error flushing tabwriter: %v", err)
	}

	fmt.Println()
	if allPassed {
		fmt.Println("All checks passed.")
		return nil
	}

	return fmt.Errorf("one or more checks failed")
}
