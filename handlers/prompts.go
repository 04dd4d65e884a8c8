// ABOUTME: MCP prompt handlers for reusable sync workflow templates
// ABOUTME: Builds prompts that triage failed runs and review an account's linked records
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
)

type PromptHandlers struct {
	store *db.Store
}

func NewPromptHandlers(store *db.Store) *PromptHandlers {
	return &PromptHandlers{store: store}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "sync-triage":
		return h.getSyncTriagePrompt(ctx, request.Params.Arguments)
	case "account-review":
		return h.getAccountReviewPrompt(ctx, request.Params.Arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getSyncTriagePrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	runs, err := h.store.ListRuns(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runs: %w", err)
	}
	watermarks, err := h.store.ListWatermarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch watermarks: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please triage the recent legacy CRM sync runs:\n\n")
	if len(runs) == 0 {
		promptText.WriteString("No runs have been recorded yet.\n")
	}
	for _, r := range runs {
		promptText.WriteString(fmt.Sprintf("- %s (%s) started %s: %d ok, %d errors, %d deferred",
			r.ID, r.Trigger, r.StartedAt.Format("2006-01-02 15:04"), r.Succeeded, r.Failed, r.Deferred))
		if r.Error != "" {
			promptText.WriteString(fmt.Sprintf(", aborted: %s", r.Error))
		}
		promptText.WriteString("\n")
	}

	if len(watermarks) > 0 {
		promptText.WriteString("\nCategory state:\n")
		for _, w := range watermarks {
			last := "never"
			if w.LastSyncTime != nil {
				last = w.LastSyncTime.Format("2006-01-02 15:04:05")
			}
			promptText.WriteString(fmt.Sprintf("- %s: %s, last sync %s", w.Category, w.Status, last))
			if w.ErrorMessage != "" {
				promptText.WriteString(fmt.Sprintf(" (%s)", w.ErrorMessage))
			}
			promptText.WriteString("\n")
		}
	}

	promptText.WriteString("\nPlease identify:")
	promptText.WriteString("\n1. Categories that keep failing and the likely cause")
	promptText.WriteString("\n2. Whether deferred records should resolve on the next run")
	promptText.WriteString("\n3. Which pulls to rerun first")

	return &mcp.GetPromptResult{
		Description: "Triage of recent sync runs",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

func (h *PromptHandlers) getAccountReviewPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	legacyID, ok := args["legacy_company_id"]
	if !ok || legacyID == "" {
		return nil, fmt.Errorf("legacy_company_id is required")
	}

	accounts, err := h.store.Find(ctx, models.KindAccount, models.Criterion{Field: models.FieldLegacyCompanyID, Value: legacyID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no account with legacy company id %s", legacyID)
	}
	account := accounts[0]

	links, err := h.store.LinksTo(ctx, account.ID, models.RelAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account links: %w", err)
	}

	var contacts, opportunities []string
	for _, l := range links {
		e, err := h.store.Get(ctx, l.OwnerID)
		if errors.Is(err, db.ErrEntityNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch linked entity: %w", err)
		}
		switch e.Kind {
		case models.KindContact:
			contacts = append(contacts, e.Name)
		case models.KindOpportunity:
			opportunities = append(opportunities, fmt.Sprintf("%s [%s]", e.Name, e.Get(models.FieldStage)))
		}
	}

	var promptText strings.Builder
	promptText.WriteString("Please review this synced account:\n\n")
	promptText.WriteString(fmt.Sprintf("Name: %s\n", account.Name))
	promptText.WriteString(fmt.Sprintf("Legacy company id: %s\n", legacyID))
	if t := account.Get(models.FieldAccountType); t != "" {
		promptText.WriteString(fmt.Sprintf("Type: %s\n", t))
	}
	if d := account.Get(models.FieldLastBooking); d != "" {
		promptText.WriteString(fmt.Sprintf("Last booking: %s\n", d))
	}
	promptText.WriteString(fmt.Sprintf("\nContacts (%d): %s\n", len(contacts), strings.Join(contacts, ", ")))
	promptText.WriteString(fmt.Sprintf("Opportunities (%d): %s\n", len(opportunities), strings.Join(opportunities, ", ")))

	promptText.WriteString("\nPlease point out missing contacts, stale opportunities and anything that looks mislinked.")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review of account: %s", account.Name),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}
