package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, connectivity and mirror consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor() error {
	fmt.Println("\ntracksync doctor")
	fmt.Println("================")

	var results []checkResult

	cfgPath, cfg, cfgErr := loadConfigFile()
	if cfgErr != nil {
		results = append(results, checkResult{
			Name: "Config file", Passed: false,
			Detail: cfgPath,
			Hint:   "Run: tracksync-cli init",
		})
	} else {
		results = append(results, checkResult{
			Name: "Config file", Passed: true,
			Detail: fmt.Sprintf("found (%s)", cfgPath),
		})
	}

	s := resolveSettings(cfg, os.Getenv)
	results = append(results, checkResult{Name: "Server URL", Passed: true, Detail: s.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := client.New(s.URL, client.WithTimeout(s.Timeout))
	results = append(results, doctorServerChecks(ctx, c)...)

	fmt.Println()
	allPassed := true
	for _, r := range results {
		if r.Passed {
			if r.Detail != "" {
				fmt.Printf("✅ %s: %s\n", r.Name, r.Detail)
			} else {
				fmt.Printf("✅ %s\n", r.Name)
			}
			continue
		}

		allPassed = false
		if r.Detail != "" {
			fmt.Printf("❌ %s: %s\n", r.Name, r.Detail)
		} else {
			fmt.Printf("❌ %s\n", r.Name)
		}
		if r.Hint != "" {
			fmt.Printf("   Hint: %s\n", r.Hint)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("❌ Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println("✅ All checks passed!")
	return nil
}

// doctorServerChecks checks liveness, readiness and mirror divergence.
// Later checks are skipped once the server is unreachable.
func doctorServerChecks(ctx context.Context, c *client.Client) []checkResult {
	health, err := c.Health(ctx)
	if err != nil {
		return []checkResult{{
			Name: "Server reachable", Passed: false,
			Hint: fmt.Sprintf("Is tracksync running? Error: %v", err),
		}}
	}

	results := []checkResult{{Name: "Server reachable", Passed: true, Detail: "v" + health.Version}}

	ready, err := c.Ready(ctx)
	names := make([]string, 0, len(ready.Checks))
	for name := range ready.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state := ready.Checks[name]
		results = append(results, checkResult{
			Name:   "Backend " + name,
			Passed: state == "ok",
			Detail: state,
		})
	}

	if err != nil && len(names) == 0 {
		results = append(results, checkResult{Name: "Readiness", Passed: false, Hint: err.Error()})
	}

	reports, diverged, err := c.Audit.All(ctx)
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "Mirror consistency", Passed: false, Hint: err.Error()})
	case diverged > 0:
		for _, r := range reports {
			if !r.Diverged {
				continue
			}
			results = append(results, checkResult{
				Name: "Mirror consistency " + r.EntityType, Passed: false,
				Detail: fmt.Sprintf("canonical=%d graph=%d search=%d", r.CanonicalCount, r.GraphCount, r.SearchCount),
				Hint:   "Run: tracksync-cli sync full " + r.EntityType,
			})
		}
	default:
		results = append(results, checkResult{
			Name: "Mirror consistency", Passed: true,
			Detail: fmt.Sprintf("%d entity types in line", len(reports)),
		})
	}

	return results
}
