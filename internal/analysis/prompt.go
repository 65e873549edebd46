package analysis

import (
	"fmt"
	"strings"

	"github.com/hyperjump/buildcost/internal/models"
)

const analysisSystemPrompt = `You are a construction quantity surveyor. Read the supplied construction document
(drawing, specification, bill of quantities or photo) and produce a cost take-off.

Respond with ONLY one JSON object, no prose, matching:
{
  "items": [
    {"item": "string", "category": "structural|civil|electrical|plumbing|finishing|hvac|labor|materials|equipment",
     "quantity": number, "unit": "m²|m³|m|kg|t|ea|lot|hr", "estimated_rate": number, "confidence": number}
  ],
  "project_type": "residential|commercial|industrial|infrastructure|renovation|other",
  "total_estimated_cost": number,
  "accuracy": number,
  "insights": ["string"]
}

Rules: rates are in US dollars per unit at US national average prices; quantities use metric units;
confidence and accuracy are percentages from 0 to 100; omit items you cannot quantify.`

const chatSystemPrompt = `You are a helpful construction cost assistant. Answer questions about the
project estimate provided below. Be concise and quote amounts in US dollars unless asked otherwise.`

// userPrompt builds the instruction accompanying a document.
func userPrompt(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", doc.FileName)
	if doc.ProjectType != "" && doc.ProjectType != models.TypeOther {
		fmt.Fprintf(&b, "Declared project type: %s\n", doc.ProjectType)
	}
	if doc.Text != "" {
		b.WriteString("\nContent:\n")
		b.WriteString(doc.Text)
	} else {
		b.WriteString("\nThe document is attached as an image.")
	}
	return b.String()
}

// splitSystem separates system messages from the conversation. The chat prompt always leads.
func splitSystem(history []Message) (string, []Message) {
	system := []string{chatSystemPrompt}
	rest := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
