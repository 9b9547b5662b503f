// Package kb loads and serves the curated knowledge base of worker-rights
// entries. The source of truth is a YAML document with top-level keys
// "rights", "disclaimers" and "emergency_contacts"; when the file is missing
// or unparseable a built-in minimal book is substituted so the assistant
// keeps functioning.
package kb

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Contact is a named phone contact attached to an entry or listed as an
// emergency contact.
type Contact struct {
	Name        string `yaml:"name"`
	Phone       string `yaml:"phone"`
	Description string `yaml:"description"`
}

// Entry is a single rights entry. Details is free text with bolded-header
// and bullet markers that the response composer mines for rights/actions
// lines.
type Entry struct {
	ID         string    `yaml:"id"`
	Title      string    `yaml:"title"`
	Categories []string  `yaml:"categories"`
	Summary    string    `yaml:"summary"`
	Details    string    `yaml:"details"`
	Contacts   []Contact `yaml:"contacts"`
}

// HasCategory reports whether the entry is tagged with the given category.
func (e Entry) HasCategory(category string) bool {
	for _, c := range e.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Disclaimer is a legal disclaimer line shown with composed responses.
type Disclaimer struct {
	Text string `yaml:"text"`
}

// Book is the full decoded knowledge base document.
type Book struct {
	Rights            []Entry      `yaml:"rights"`
	Disclaimers       []Disclaimer `yaml:"disclaimers"`
	EmergencyContacts []Contact    `yaml:"emergency_contacts"`
}

// Store is a long-lived, read-mostly holder of the knowledge base. Load
// memoizes the decoded book; Reload replaces it wholesale. Safe for
// concurrent use by multiple sessions.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	book *Book
}

// NewStore creates a Store reading from the given YAML path. The file is not
// touched until the first Load.
func NewStore(path string) *Store {
	return &Store{path: path, logger: slog.Default()}
}

// Load returns the knowledge base, reading and decoding the source file on
// first use. Load never fails: on a missing or malformed file it logs the
// problem and serves the built-in default book.
func (s *Store) Load() *Book {
	s.mu.RLock()
	book := s.book
	s.mu.RUnlock()
	if book != nil {
		return book
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.book == nil {
		s.book = s.read()
	}
	return s.book
}

// Reload discards the memoized book and re-reads the source file. The
// replacement is atomic from the readers' perspective.
func (s *Store) Reload() *Book {
	book := s.read()
	s.mu.Lock()
	s.book = book
	s.mu.Unlock()
	return book
}

func (s *Store) read() *Book {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Error("knowledge base file not readable, using default book", "path", s.path, "error", err)
		return defaultBook()
	}

	var book Book
	if err := yaml.Unmarshal(data, &book); err != nil {
		s.logger.Error("knowledge base file not parseable, using default book", "path", s.path, "error", err)
		return defaultBook()
	}

	book.Rights = dedupeByID(book.Rights, s.logger)
	s.logger.Info("knowledge base loaded", "path", s.path, "entries", len(book.Rights))
	return &book
}

// dedupeByID enforces the unique-ID invariant: the first occurrence of an ID
// wins, later duplicates are dropped with a warning.
func dedupeByID(entries []Entry, logger *slog.Logger) []Entry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if seen[e.ID] {
			logger.Warn("duplicate knowledge base entry dropped", "id", e.ID)
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

// Count returns the number of loaded rights entries.
func (s *Store) Count() int {
	return len(s.Load().Rights)
}

// All returns every rights entry in document order.
func (s *Store) All() []Entry {
	return s.Load().Rights
}

// ByCategory returns entries tagged with the given category, in document order.
func (s *Store) ByCategory(category string) []Entry {
	var out []Entry
	for _, e := range s.Load().Rights {
		if e.HasCategory(category) {
			out = append(out, e)
		}
	}
	return out
}

// ByID returns the entry with the given ID, or false when absent.
func (s *Store) ByID(id string) (Entry, bool) {
	for _, e := range s.Load().Rights {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Search returns entries whose title, summary or details contain the query,
// case-insensitively, in document order.
func (s *Store) Search(query string) []Entry {
	q := strings.ToLower(query)
	var out []Entry
	for _, e := range s.Load().Rights {
		if strings.Contains(strings.ToLower(e.Title), q) ||
			strings.Contains(strings.ToLower(e.Summary), q) ||
			strings.Contains(strings.ToLower(e.Details), q) {
			out = append(out, e)
		}
	}
	return out
}

// Disclaimers returns the disclaimer lines from the loaded book.
func (s *Store) Disclaimers() []Disclaimer {
	return s.Load().Disclaimers
}

// EmergencyContacts returns the emergency contact list from the loaded book.
func (s *Store) EmergencyContacts() []Contact {
	return s.Load().EmergencyContacts
}

// defaultBook is the substitute knowledge base used when the source file
// cannot be loaded. It keeps the assistant answering with real contact
// numbers instead of failing startup.
func defaultBook() *Book {
	return &Book{
		Rights: []Entry{
			{
				ID:         "default",
				Title:      "General Information",
				Categories: []string{"general"},
				Summary:    "For specific help, please contact MOM or NGOs",
				Details:    "Please contact the Ministry of Manpower at 6438 5122 or NGOs like HOME (6341 5535) for assistance.",
				Contacts: []Contact{
					{
						Name:        "Ministry of Manpower (MOM)",
						Phone:       "6438 5122",
						Description: "Government agency for employment matters",
					},
				},
			},
		},
		Disclaimers: []Disclaimer{
			{Text: "This information is for general guidance only and does not constitute legal advice."},
		},
		EmergencyContacts: []Contact{
			{
				Name:        "Police Emergency",
				Phone:       "999",
				Description: "For crimes, accidents, or immediate danger",
			},
		},
	}
}

// Describe returns a one-line summary of the store for status output.
func (s *Store) Describe() string {
	return fmt.Sprintf("%d entries from %s", s.Count(), s.path)
}
