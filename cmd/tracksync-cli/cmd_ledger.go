package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

// maxImportLine bounds one JSONL record in ledger import.
const maxImportLine = 1 << 20

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Append to and read the change ledger",
	}
	cmd.AddCommand(ledgerAppendCmd())
	cmd.AddCommand(ledgerEntriesCmd())
	cmd.AddCommand(ledgerHistoryCmd())
	cmd.AddCommand(ledgerSearchCmd())
	cmd.AddCommand(ledgerImportCmd())
	return cmd
}

func ledgerAppendCmd() *cobra.Command {
	var payloadJSON string
	cmd := &cobra.Command{
		Use:   "append <entity_type> <entity_id> <CREATE|UPDATE|DELETE>",
		Short: "Record one canonical mutation",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			req := &client.AppendRequest{
				EntityType: args[0],
				EntityID:   args[1],
				Operation:  strings.ToUpper(args[2]),
			}
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &req.Payload); err != nil {
					fatal("parse payload", err)
				}
			}
			entry, err := apiClient.Ledger.Append(cmd.Context(), req)
			if err != nil {
				fatal("append", err)
			}
			output(entry, strconv.FormatInt(entry.Sequence, 10))
		},
	}
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "Full record as JSON (required for CREATE and UPDATE)")
	return cmd
}

func ledgerEntriesCmd() *cobra.Command {
	var (
		after int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "entries <entity_type>",
		Short: "Page through ledger entries after a sequence",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, next, more, err := apiClient.Ledger.Entries(cmd.Context(), args[0], after, limit)
			if err != nil {
				fatal("read ledger", err)
			}
			if printEntryTable(entries) {
				if more {
					fmt.Fprintf(os.Stderr, "more entries: --after %d\n", next)
				}
				return
			}
			output(map[string]any{"entries": entries, "next": next, "has_more": more}, strconv.FormatInt(next, 10))
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "Return entries with sequence above this")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max entries")
	return cmd
}

func ledgerHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <entity_type> <entity_id>",
		Short: "Every ledger entry for one entity",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := apiClient.Ledger.History(cmd.Context(), args[0], args[1])
			if err != nil {
				fatal("entity history", err)
			}
			if printEntryTable(entries) {
				return
			}
			output(entries, strconv.Itoa(len(entries)))
		},
	}
}

func ledgerSearchCmd() *cobra.Command {
	var (
		entityType, operation, from, to string
		limit                           int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Filter ledger entries by type, operation and time range",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts := &client.LedgerSearchOptions{EntityType: entityType, Operation: strings.ToUpper(operation), Limit: limit}
			var err error
			if opts.From, err = parseTimeFlag(from); err != nil {
				fatal("parse --from", err)
			}
			if opts.To, err = parseTimeFlag(to); err != nil {
				fatal("parse --to", err)
			}
			entries, err := apiClient.Ledger.Search(cmd.Context(), opts)
			if err != nil {
				fatal("search ledger", err)
			}
			if printEntryTable(entries) {
				return
			}
			output(entries, strconv.Itoa(len(entries)))
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "Entity type")
	cmd.Flags().StringVar(&operation, "op", "", "Operation: CREATE|UPDATE|DELETE")
	cmd.Flags().StringVar(&from, "from", "", "Earliest recorded_at (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "Latest recorded_at (RFC3339)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max entries")
	return cmd
}

func ledgerImportCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.jsonl|->",
		Short: "Append mutations from a JSON Lines file",
		Long: `Append one ledger entry per line. Each line is an object with
entity_type, entity_id, operation and payload. Lines are appended in file
order; the first failure stops the import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening file: %w", err)
				}
				defer f.Close()
				r = f
			}

			reqs, err := readAppendRequests(r)
			if err != nil {
				return err
			}

			if dryRun {
				fmt.Fprintf(os.Stderr, "(dry run) %d entries parsed\n", len(reqs))
				return nil
			}

			var last int64
			for i, req := range reqs {
				entry, err := apiClient.Ledger.Append(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				last = entry.Sequence
			}

			fmt.Fprintf(os.Stderr, "Appended %d entries, last sequence %d\n", len(reqs), last)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and count without appending")
	return cmd
}

// readAppendRequests parses JSON Lines, skipping blank lines.
func readAppendRequests(r io.Reader) ([]*client.AppendRequest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxImportLine)

	var (
		reqs []*client.AppendRequest
		line int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var req client.AppendRequest
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if req.EntityType == "" || req.EntityID == "" || req.Operation == "" {
			return nil, fmt.Errorf("line %d: entity_type, entity_id and operation are required", line)
		}
		req.Operation = strings.ToUpper(req.Operation)
		reqs = append(reqs, &req)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return reqs, nil
}

func printEntryTable(entries []client.ChangeLogEntry) bool {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.Sequence, 10), e.EntityType, e.EntityID, e.Operation, e.RecordedAt.Format(time.RFC3339),
		})
	}
	return table([]string{"SEQ", "TYPE", "ID", "OP", "RECORDED"}, rows)
}

func parseTimeFlag(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
