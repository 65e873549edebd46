package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/buildcost/internal/analysis"
	"github.com/hyperjump/buildcost/internal/convert"
	"github.com/hyperjump/buildcost/internal/locale"
	"github.com/hyperjump/buildcost/internal/models"
)

const (
	maxChatMessages   = 50
	summaryTopN       = 3
	contextItemsLimit = 100
)

// Chat answers the latest user message about the owner's project. Client-supplied system messages
// are dropped; the project's estimate is always sent as the system context. When no assistant is
// configured the reply is a deterministic summary of the stored estimate.
func (s *Service) Chat(ctx context.Context, ownerID, id string, history []analysis.Message) (string, error) {
	msgs := make([]analysis.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role != analysis.RoleUser && m.Role != analysis.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != analysis.RoleUser {
		return "", fieldError("messages", "required")
	}
	if len(msgs) > maxChatMessages {
		msgs = msgs[len(msgs)-maxChatMessages:]
	}

	p, err := s.store.GetProject(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if s.assistant == nil {
		return Summary(p, s.Registry().Base()), nil
	}

	msgs = append([]analysis.Message{{Role: analysis.RoleSystem, Content: projectContext(p)}}, msgs...)
	reply, err := s.assistant.Chat(ctx, msgs)
	if errors.Is(err, analysis.ErrNotConfigured) {
		return Summary(p, s.Registry().Base()), nil
	}
	if err != nil {
		s.logger.Warn("chat failed", zap.String("project_id", id), zap.Error(err))
		return "", fmt.Errorf("chat: %w", err)
	}
	return reply, nil
}

// projectContext renders the stored estimate for the assistant's system prompt.
func projectContext(p *models.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\nType: %s\nStatus: %s\n", p.Name, p.Type, p.Status)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	if len(p.Items) == 0 {
		b.WriteString("No estimate has been generated yet.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Total cost (USD): %.2f\nAccuracy: %.0f%%\nLine items:\n", p.TotalCost, p.Accuracy)
	for i, it := range p.Items {
		if i == contextItemsLimit {
			fmt.Fprintf(&b, "... %d more items\n", len(p.Items)-i)
			break
		}
		fmt.Fprintf(&b, "- [%s] %s: %g %s at %.2f = %.2f\n", it.Category, it.Description, it.Quantity, it.Unit, it.Rate, it.Amount)
	}
	return b.String()
}

type categoryTotal struct {
	name   string
	amount float64
}

// Summary describes a project's estimate in plain text using profile p for money formatting.
// Output depends only on the stored project.
func Summary(proj *models.Project, p locale.CountryProfile) string {
	if len(proj.Items) == 0 {
		return fmt.Sprintf("%s has no estimate yet. Upload documents and process the project to generate one.", proj.Name)
	}

	byCategory := map[string]float64{}
	for _, it := range proj.Items {
		byCategory[it.Category] += it.Amount
	}
	cats := make([]categoryTotal, 0, len(byCategory))
	for name, amount := range byCategory {
		cats = append(cats, categoryTotal{name, amount})
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].amount != cats[j].amount {
			return cats[i].amount > cats[j].amount
		}
		return cats[i].name < cats[j].name
	})

	items := append([]models.LineItem(nil), proj.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Amount > items[j].Amount })

	var b strings.Builder
	fmt.Fprintf(&b, "Estimated total for %s: %s across %d line items (accuracy %.0f%%).",
		proj.Name, convert.FormatCurrency(proj.TotalCost, p), len(proj.Items), proj.Accuracy)
	b.WriteString("\nLargest categories: ")
	for i, c := range cats[:min(summaryTopN, len(cats))] {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", c.name, convert.FormatCurrency(c.amount, p))
	}
	b.WriteString("\nLargest items: ")
	for i, it := range items[:min(summaryTopN, len(items))] {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", it.Description, convert.FormatCurrency(it.Amount, p))
	}
	if proj.EstimateSource == models.SourceFallback {
		b.WriteString("\nThis is a reference estimate; no document could be analyzed.")
	}
	return b.String()
}
