// Package classify categorizes free-text queries and detects emergency and
// greeting intents. All detection is data-driven keyword matching so new
// categories are table additions, not logic changes.
package classify

import "strings"

// categoryKeywords maps a category tag to its trigger substrings. A category
// is selected when any keyword appears in the lowercased query.
var categoryKeywords = []struct {
	Category string
	Keywords []string
}{
	{"payment", []string{"paid", "salary", "wage", "money", "payment", "pay", "unpaid"}},
	{"passport", []string{"passport", "document", "identity", "id", "papers"}},
	{"medical", []string{"sick", "doctor", "medical", "health", "hospital", "ill", "injury"}},
	{"rest", []string{"rest", "day off", "holiday", "break", "weekend", "off"}},
	{"accommodation", []string{"accommodation", "housing", "room", "bed", "living", "dormitory"}},
	{"employer", []string{"employer", "boss", "company", "workplace", "manager", "supervisor"}},
	{"hours", []string{"hours", "overtime", "work time", "working", "shift"}},
	{"contract", []string{"contract", "agreement", "terms", "conditions"}},
}

// emergencyKeywords flag urgent situations. The emergency check runs before
// any retrieval or model call so distress responses are never delayed by
// network latency.
var emergencyKeywords = []string{
	"emergency", "urgent", "help", "danger", "dangerous", "hurt", "injured",
	"accident", "fire", "police", "ambulance", "hospital", "serious",
}

// greetingPhrases are matched against short queries only; a long question
// that happens to contain "hi" is not a greeting.
var greetingPhrases = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
}

// maxGreetingWords bounds how long a query can be and still count as a greeting.
const maxGreetingWords = 4

// examplePrompts are offered to UI collaborators as quick questions.
var examplePrompts = []string{
	"I have not been paid for two months",
	"My employer keeps my passport",
	"I am sick but not allowed to see a doctor",
	"I need a rest day",
	"My accommodation is overcrowded",
	"I want to change employer",
}

// Classifier is a stateless keyword classifier. The zero value is ready to use.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// containsAny reports whether any of the keywords appears as a substring of
// the lowercased text. Shared by all detection paths.
func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Categorize returns the category tags triggered by the query, in table
// order. Queries matching no category yield the singleton "general".
func (c *Classifier) Categorize(query string) []string {
	lower := strings.ToLower(query)
	var categories []string
	for _, entry := range categoryKeywords {
		if containsAny(lower, entry.Keywords) {
			categories = append(categories, entry.Category)
		}
	}
	if len(categories) == 0 {
		return []string{"general"}
	}
	return categories
}

// Keywords returns the individual trigger keywords found in the query,
// in table order.
func (c *Classifier) Keywords(query string) []string {
	lower := strings.ToLower(query)
	var found []string
	for _, entry := range categoryKeywords {
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				found = append(found, kw)
			}
		}
	}
	return found
}

// IsEmergency reports whether the query signals an urgent situation.
func (c *Classifier) IsEmergency(query string) bool {
	return containsAny(strings.ToLower(query), emergencyKeywords)
}

// IsGreeting reports whether the query is a short greeting.
func (c *Classifier) IsGreeting(query string) bool {
	lower := strings.ToLower(strings.TrimSpace(query))
	if len(strings.Fields(lower)) > maxGreetingWords {
		return false
	}
	return containsAny(lower, greetingPhrases)
}

// ExamplePrompts returns the canned quick questions for the UI.
func ExamplePrompts() []string {
	out := make([]string, len(examplePrompts))
	copy(out, examplePrompts)
	return out
}
