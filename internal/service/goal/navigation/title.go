package navigation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	stepPrefixRe  = regexp.MustCompile(`(?i)^(Break\s+down\s+)?(Step\s+)?\d+(\.\d+)*[:.]?\s*`)
	numberingRe   = regexp.MustCompile(`^\d+(\.\d+)*\s+`)
	contextLeadRe = regexp.MustCompile(`(?i)Context for this step:\s*`)
)

// CleanGoalTitle strips drill-down boilerplate ("Break down Step 1.2:", numbering,
// wrapping quotes, the context lead-in) from a message for use as a title.
func CleanGoalTitle(text string) string {
	if text == "" {
		return ""
	}
	clean := stepPrefixRe.ReplaceAllString(text, "")
	clean = numberingRe.ReplaceAllString(clean, "")
	clean = strings.TrimPrefix(clean, `"`)
	clean = strings.TrimSuffix(clean, `"`)
	clean = contextLeadRe.ReplaceAllString(clean, "")
	return strings.TrimSpace(clean)
}

// DrillDownMessage is the user message sent when drilling into a planned step.
func DrillDownMessage(stepNumber, stepTitle, description string) string {
	msg := fmt.Sprintf(`Break down Step %s: "%s"`, stepNumber, stepTitle)
	if d := strings.TrimSpace(description); d != "" {
		msg += "\nContext for this step: " + d
	}
	return msg
}
