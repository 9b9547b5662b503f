package kb

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
rights:
  - id: p1
    title: Unpaid Wages
    categories: [payment]
    summary: Your employer must pay your salary on time.
    details: |
      **Your Rights:**
      - You have the right to be paid within 7 days of the end of the salary period
      **What You Can Do:**
      1. Keep records of your work hours
      2. Report non-payment to MOM
    contacts:
      - name: MOM
        phone: 6438 5122
        description: Ministry of Manpower
  - id: d1
    title: Passport Retention
    categories: [passport, employer]
    summary: Employers must not keep your passport.
    details: Keeping a worker's passport without consent is illegal.
disclaimers:
  - text: This information is for general guidance only.
emergency_contacts:
  - name: Police Emergency
    phone: "999"
`

func writeKB(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rights.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	store := NewStore(writeKB(t, sampleYAML))

	if got := store.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	entry, ok := store.ByID("p1")
	if !ok {
		t.Fatal("ByID(p1) not found")
	}
	if entry.Title != "Unpaid Wages" {
		t.Errorf("title = %q, want %q", entry.Title, "Unpaid Wages")
	}
	if len(entry.Contacts) != 1 || entry.Contacts[0].Phone != "6438 5122" {
		t.Errorf("contacts = %+v, want MOM 6438 5122", entry.Contacts)
	}
}

func TestByCategory(t *testing.T) {
	store := NewStore(writeKB(t, sampleYAML))

	payment := store.ByCategory("payment")
	if len(payment) != 1 || payment[0].ID != "p1" {
		t.Errorf("ByCategory(payment) = %+v, want [p1]", payment)
	}

	if got := store.ByCategory("medical"); len(got) != 0 {
		t.Errorf("ByCategory(medical) = %+v, want empty", got)
	}
}

func TestSearch(t *testing.T) {
	store := NewStore(writeKB(t, sampleYAML))

	got := store.Search("PASSPORT")
	if len(got) != 1 || got[0].ID != "d1" {
		t.Errorf("Search(PASSPORT) = %+v, want [d1]", got)
	}

	if got := store.Search("spaceship"); len(got) != 0 {
		t.Errorf("Search(spaceship) = %+v, want empty", got)
	}
}

func TestMissingFileUsesDefaultBook(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	if got := store.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1 default entry", got)
	}
	entry, ok := store.ByID("default")
	if !ok {
		t.Fatal("default entry missing")
	}
	if !entry.HasCategory("general") {
		t.Errorf("default entry categories = %v, want general", entry.Categories)
	}
	if len(store.EmergencyContacts()) == 0 {
		t.Error("default book has no emergency contacts")
	}
}

func TestMalformedFileUsesDefaultBook(t *testing.T) {
	store := NewStore(writeKB(t, "rights: [not: valid: yaml: {"))

	if got := store.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1 default entry", got)
	}
}

func TestDuplicateIDsDropped(t *testing.T) {
	dup := `
rights:
  - id: p1
    title: First
  - id: p1
    title: Second
`
	store := NewStore(writeKB(t, dup))

	if got := store.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1 after dedupe", got)
	}
	entry, _ := store.ByID("p1")
	if entry.Title != "First" {
		t.Errorf("kept entry title = %q, want First (first occurrence wins)", entry.Title)
	}
}

func TestReloadReplacesBook(t *testing.T) {
	path := writeKB(t, sampleYAML)
	store := NewStore(path)

	if got := store.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	updated := `
rights:
  - id: only
    title: Only Entry
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	// Load is memoized; Reload picks up the new content.
	if got := store.Count(); got != 2 {
		t.Fatalf("memoized Count() = %d, want 2", got)
	}
	store.Reload()
	if got := store.Count(); got != 1 {
		t.Fatalf("Count() after reload = %d, want 1", got)
	}
}
