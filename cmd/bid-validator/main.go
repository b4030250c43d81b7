// bid-validator checks a proposed bid against a session snapshot offline,
// for support staff replaying disputed rejections.
//
// Usage:
//
//	bid-validator --session session.json --user guest_a --bid 1200 [--at 2026-07-04T12:00:00Z] [--format json]
//
// Exit codes: 0 bid valid, 1 bid rejected, 2 input or contract error.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/splitlease/nightbid/core"
)

func main() {
	var (
		sessionInput = flag.String("session", "", "Session snapshot JSON (file path or inline JSON)")
		userID       = flag.String("user", "", "User ID of the bidder")
		bidAmount    = flag.Float64("bid", 0, "Proposed bid amount in USD")
		atInput      = flag.String("at", "", "Evaluation instant, RFC3339 (default: now)")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *sessionInput == "" || *userID == "" || *bidAmount == 0 {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --session, --user and --bid are required\n")
		os.Exit(2)
	}

	session, err := readSessionInput(*sessionInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading session: %v\n", err)
		os.Exit(2)
	}

	now := time.Now()
	if *atInput != "" {
		now, err = time.Parse(time.RFC3339, *atInput)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing --at: %v\n", err)
			os.Exit(2)
		}
	}

	result, err := core.ValidateBid(core.ValidateBidInput{
		ProposedBid: *bidAmount,
		Session:     session,
		UserID:      *userID,
		Now:         now,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(*bidAmount, result)
	}

	if !result.Valid {
		os.Exit(1)
	}
}

// readSessionInput accepts either a file path or inline JSON.
func readSessionInput(input string) (*core.Session, error) {
	data := []byte(input)
	if !strings.HasPrefix(strings.TrimSpace(input), "{") {
		fileData, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", input, err)
		}
		data = fileData
	}

	var session core.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session JSON: %w", err)
	}
	return &session, nil
}

func outputJSON(result core.ValidationResult) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(2)
	}
}

func outputText(amount float64, result core.ValidationResult) {
	verdict := "ACCEPTED"
	if !result.Valid {
		verdict = "REJECTED"
	}
	fmt.Printf("Bid of %s: %s\n", core.FormatUSD(amount), verdict)
	for _, message := range result.Errors {
		fmt.Printf("  - %s\n", message)
	}
	fmt.Printf("Minimum next bid: %s\n", core.FormatUSD(result.MinimumNextBid))
	fmt.Printf("Maximum allowed:  %s\n", core.FormatUSD(result.MaximumAllowed))
	fmt.Printf("Suggested bid:    %s\n", core.FormatUSD(result.SuggestedBid))
}

func showUsage() {
	fmt.Println(`bid-validator - validate a proposed bid against a session snapshot

Usage:
  bid-validator --session <file-or-json> --user <user-id> --bid <amount> [options]

Options:
  --session   Session snapshot JSON (file path or inline JSON)
  --user      User ID of the bidder
  --bid       Proposed bid amount in USD
  --at        Evaluation instant, RFC3339 (default: now)
  --format    Output format: text or json (default: text)
  --help      Show this message`)
}
