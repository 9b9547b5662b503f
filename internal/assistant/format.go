package assistant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hellofriends/hellofriends/internal/kb"
)

const disclaimerText = "⚠️ **Disclaimer:** This information is for general guidance only and does not constitute legal advice. For specific legal matters, please consult a qualified lawyer or contact MOM directly."

const (
	// maxDetailLines caps how many extracted rights/actions lines appear in
	// a structured answer.
	maxDetailLines = 5
	// maxContacts caps the contacts listed per entry.
	maxContacts = 3
	// maxRelated caps the related-entry links appended after the primary
	// entry.
	maxRelated = 2
)

var numberedLine = regexp.MustCompile(`^\d+\.`)

// formatEntries renders the structured knowledge base answer: the first
// entry in full (summary, extracted rights and actions lines, contacts,
// disclaimer) plus links to up to two related entries.
func formatEntries(entries []kb.Entry) string {
	if len(entries) == 0 {
		return formatNoResults()
	}

	primary := entries[0]
	summary := primary.Summary
	if summary == "" {
		summary = "No summary available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## 📋 %s\n\n", title(primary))
	fmt.Fprintf(&b, "**Summary:** %s\n\n", summary)
	fmt.Fprintf(&b, "**Your Rights in Singapore:**\n%s\n\n", extractRights(primary.Details))
	fmt.Fprintf(&b, "**What You Can Do Now:**\n%s\n\n", extractActions(primary.Details))
	fmt.Fprintf(&b, "**Helpful Contacts:**\n%s\n\n", formatContacts(primary.Contacts))
	b.WriteString(disclaimerText)

	if len(entries) > 1 {
		b.WriteString("\n\n---\n\n**Related Information:**\n")
		for i, e := range entries[1:] {
			if i == maxRelated {
				break
			}
			fmt.Fprintf(&b, "- %s\n", title(e))
		}
	}

	return strings.TrimSpace(b.String())
}

func title(e kb.Entry) string {
	if e.Title == "" {
		return "Information"
	}
	return e.Title
}

// extractRights mines the details text for lines describing entitlements:
// bolded or bulleted lines mentioning rights-flavored words.
func extractRights(details string) string {
	lines := pickLines(details, []string{"right", "entitle", "should", "can"}, false)
	if len(lines) == 0 {
		return "Please refer to the detailed information below for your specific rights."
	}
	return strings.Join(lines, "\n")
}

// extractActions mines the details text for actionable steps: bolded or
// bulleted lines mentioning action-flavored words, plus numbered list items.
func extractActions(details string) string {
	lines := pickLines(details, []string{"do", "action", "step", "contact", "report"}, true)
	if len(lines) == 0 {
		return "Please refer to the detailed information below for specific steps you can take."
	}
	return strings.Join(lines, "\n")
}

// pickLines selects matching detail lines, skipping the section headers
// themselves and stopping at maxDetailLines. Numbered items are included
// unconditionally when wantNumbered is set.
func pickLines(details string, keywords []string, wantNumbered bool) []string {
	var out []string
	for _, line := range strings.Split(details, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isSectionHeader(line) {
			continue
		}

		matched := false
		switch {
		case strings.HasPrefix(line, "**") && strings.Contains(line[2:], "**"):
			matched = containsAnyWord(line, keywords)
		case strings.HasPrefix(line, "- "):
			matched = containsAnyWord(line, keywords)
		case wantNumbered && numberedLine.MatchString(line):
			matched = true
		}
		if matched {
			out = append(out, line)
			if len(out) == maxDetailLines {
				break
			}
		}
	}
	return out
}

func isSectionHeader(line string) bool {
	for _, h := range []string{"**Your Rights:**", "**Rights:**", "**What You Can Do:**", "**Actions:**"} {
		if strings.HasPrefix(line, h) {
			return true
		}
	}
	return false
}

func containsAnyWord(line string, keywords []string) bool {
	lower := strings.ToLower(line)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// formatContacts renders up to three contacts as bolded name, phone and
// description lines.
func formatContacts(contacts []kb.Contact) string {
	if len(contacts) == 0 {
		return "No specific contacts available. Please contact MOM at 6438 5122 for general assistance."
	}

	var lines []string
	for i, c := range contacts {
		if i == maxContacts {
			break
		}
		text := fmt.Sprintf("**%s**", c.Name)
		if c.Phone != "" {
			text += " - " + c.Phone
		}
		if c.Description != "" {
			text += fmt.Sprintf(" (%s)", c.Description)
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}

// formatNoResults is the structured answer when the knowledge base has
// nothing to offer.
func formatNoResults() string {
	return `## ❓ No Specific Information Found

**Summary:** We couldn't find specific information for your query, but we can still help.

**What You Can Do Now:**
1. **Contact MOM directly** at 6438 5122 for employment-related issues
2. **Call HOME** at 6341 5535 for general migrant worker support
3. **Contact TWC2** at 6297 7561 for assistance with work-related problems
4. **Try rephrasing your question** with more specific details

**Emergency Contacts:**
- **Police:** 999 (for crimes, accidents, immediate danger)
- **Fire/Medical:** 995 (for fires, medical emergencies, rescue)

` + disclaimerText
}

// FormatError is the user-facing answer for an internal failure. Exposed
// for the API layer, which must never return a bare error string to a chat
// client.
func FormatError(message string) string {
	return fmt.Sprintf(`## ⚠️ Error

**Something went wrong:** %s

**Please try again or contact support:**
- **MOM Hotline:** 6438 5122
- **HOME:** 6341 5535

%s`, message, disclaimerText)
}

// emergencyResponse is returned verbatim whenever an emergency keyword is
// detected. It must never depend on retrieval or model availability.
const emergencyResponse = `## 🚨 Emergency Situation

**If this is an emergency, please call immediately:**

- **Police:** 999 (for crimes, accidents, immediate danger)
- **Fire/Medical:** 995 (for fires, medical emergencies, rescue)
- **MOM Hotline:** 6438 5122 (for employment issues)

**Stay safe and get help immediately if you are in danger.**

For non-emergency issues, please ask your question again and we'll provide detailed guidance.`
