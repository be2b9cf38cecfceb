package llm

import (
	"fmt"
	"strings"

	"github.com/JaimeStill/manifest/internal/rules"
)

const defaultInstructions = `You are a freight audit analyst classifying the cost lines of freight forwarder invoices.

Each request gives you one charge description, already uppercased with amounts and currency removed, plus whatever context is known about the invoice: the issuing company, the transport mode, and the line amount.

Choose the single standard category that best describes the charge. Terminal handling is always THC whether it occurs at origin or destination. Delivery orders (D/O) are DELIVERY, never DOCS_FEE. When the description is ambiguous, prefer the more general category and lower your confidence rather than guessing a specific one.`

const classifySpec = `Respond with a JSON object matching this exact structure:

{
  "category": "<CATEGORY_CODE>",
  "confidence": 0.0,
  "reasoning": "<explanation>",
  "alternatives": [{"category": "<CATEGORY_CODE>", "confidence": 0.0}]
}

Field constraints:
- category: exactly one code from the category list below.
- confidence: your certainty between 0 and 1.
- reasoning: one or two sentences on why the category fits.
- alternatives: up to three other plausible codes from the list, most likely first. Empty array when none.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing.
- Never invent a category code that is not in the list.`

// ComposeSystemPrompt combines the tunable instructions, the fixed response
// spec, and the category catalog. An empty instructions string selects the
// built-in default.
func ComposeSystemPrompt(instructions string, categories []rules.Category) string {
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultInstructions
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n")
	sb.WriteString(classifySpec)
	sb.WriteString("\n\nCategories:\n")

	group := ""
	for _, c := range categories {
		if c.Group != group {
			group = c.Group
			fmt.Fprintf(&sb, "\n[%s]\n", group)
		}
		fmt.Fprintf(&sb, "%s: %s\n", c.Code, c.Name)
	}

	return sb.String()
}

// ComposeUserPrompt renders one classification request.
func ComposeUserPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Description: %s\n", req.Description)
	if req.CompanyCode != "" {
		fmt.Fprintf(&sb, "Issuing company: %s\n", req.CompanyCode)
	}
	if req.TransportMode != "" {
		fmt.Fprintf(&sb, "Transport mode: %s\n", req.TransportMode)
	}
	if req.Amount != nil {
		fmt.Fprintf(&sb, "Amount: %.2f %s\n", *req.Amount, req.Currency)
	}
	return strings.TrimRight(sb.String(), "\n")
}
