// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redpill-chat/redpill-cli/internal/config"
	"github.com/redpill-chat/redpill-cli/internal/gateway"
	"github.com/redpill-chat/redpill-cli/internal/util"
)

const verifyTimeout = 30 * time.Second

// HandleVerify fetches TEE attestation evidence from the gateway.
// Without an argument it shows the attestation report for the
// configured model; with a message id it fetches the enclave signature
// over that assistant message.
func HandleVerify(args *Args) int {
	cfg := config.Global()
	client := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	model := args.Option("model", cfg.Gateway.Model)

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	if args.Query == "" {
		return showAttestationReport(ctx, client, model)
	}
	return showMessageSignature(ctx, client, args.Query, model)
}

func showAttestationReport(ctx context.Context, client *gateway.Client, model string) int {
	report, err := client.AttestationReport(ctx, model)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Attestation fetch failed: "+err.Error()))
		return 1
	}

	fmt.Println(TitleStyle.Render("TEE attestation report"))
	fmt.Printf("  %s %s\n", InfoStyle.Render("model:"), model)
	fmt.Printf("  %s %s\n", InfoStyle.Render("signing address:"), report.SigningAddress)
	printEvidence("nvidia payload", report.NvidiaPayload)
	printEvidence("intel quote", report.IntelQuote)
	if len(report.AllAttestations) > 1 {
		fmt.Printf("  %s %d\n", InfoStyle.Render("attestations:"), len(report.AllAttestations))
	}
	fmt.Println()
	fmt.Println(DimStyle.Render("Verify the quote against the vendor endorsement services to complete the chain."))
	return 0
}

// printEvidence shows a truncated preview of a large evidence blob, or a
// dim absence marker. Full blobs are meant for machine verification, not
// terminal reading.
func printEvidence(label, blob string) {
	if blob == "" {
		fmt.Printf("  %s %s\n", InfoStyle.Render(label+":"), DimStyle.Render("(not provided)"))
		return
	}
	fmt.Printf("  %s %s (%d bytes)\n", InfoStyle.Render(label+":"), util.TruncateRunes(blob, 48), len(blob))
}

func showMessageSignature(ctx context.Context, client *gateway.Client, messageID, model string) int {
	sig, err := client.MessageSignature(ctx, messageID, model)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Signature fetch failed: "+err.Error()))
		return 1
	}

	fmt.Println(TitleStyle.Render("Message signature"))
	fmt.Printf("  %s %s\n", InfoStyle.Render("message:"), messageID)
	fmt.Printf("  %s %s\n", InfoStyle.Render("algorithm:"), sig.SigningAlgo)
	fmt.Printf("  %s %s\n", InfoStyle.Render("signature:"), sig.Signature)
	if sig.SigningAddress != "" {
		fmt.Printf("  %s %s\n", InfoStyle.Render("signing address:"), sig.SigningAddress)
	}
	if sig.Text != "" {
		fmt.Printf("  %s %s\n", InfoStyle.Render("signed text:"), util.TruncateRunes(sig.Text, 80))
	}
	return 0
}
