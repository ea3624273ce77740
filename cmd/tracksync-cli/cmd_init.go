package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

func newInitCmd() *cobra.Command {
	var (
		initURL     string
		initProfile string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up tracksync CLI configuration",
		Long:  "Interactive setup wizard that creates or updates ~/.tracksync/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(initURL, initProfile, initURL != "")
		},
	}

	cmd.Flags().StringVar(&initURL, "server", "", "Server URL (non-interactive mode)")
	cmd.Flags().StringVar(&initProfile, "name", "default", "Profile name to write")
	return cmd
}

func runInit(url, profile string, nonInteractive bool) error {
	if !nonInteractive {
		fmt.Println("\n  tracksync setup")
		fmt.Println("  ───────────────")
		fmt.Println()

		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("  Server URL [%s]: ", defaultURL)
		line, _ := reader.ReadString('\n')
		url = strings.TrimSpace(line)
	}

	if url == "" {
		url = defaultURL
	}

	if !nonInteractive {
		fmt.Print("\n  Testing connection... ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.New(url).Health(ctx)
	if err != nil {
		if !nonInteractive {
			fmt.Println("✗")
		}
		return fmt.Errorf("connection failed: %w", err)
	}

	if !nonInteractive {
		fmt.Printf("✓ Connected (v%s)\n", health.Version)
	}

	cfgPath, err := writeProfile(profile, url)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if nonInteractive {
		fmt.Printf("Config saved to %s\n", cfgPath)
		return nil
	}

	fmt.Printf("\n  ✓ Config saved to %s (profile %q)\n", cfgPath, profile)
	fmt.Println()
	fmt.Println("  Next steps:")
	fmt.Println("    tracksync-cli doctor          # Full diagnostic check")
	fmt.Println("    tracksync-cli sync full song  # Backfill the song mirrors")
	fmt.Println("    tracksync-cli --help          # See all commands")
	fmt.Println()

	return nil
}
