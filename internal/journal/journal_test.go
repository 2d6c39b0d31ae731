package journal

import (
	"testing"
	"time"
)

// TestRecordAndRecent round-trips entries and returns them newest first.
func TestRecordAndRecent(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	base := time.Now()
	for i := 0; i < 3; i++ {
		err := j.Record(&Entry{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Utterance: []string{"primera", "segunda", "tercera"}[i],
			Intention: "consulta_alumnos",
			Action:    "busqueda",
			RowCount:  i,
			Pushed:    i > 0,
		})
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	entries, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Utterance != "tercera" {
		t.Errorf("newest = %q, want %q", entries[0].Utterance, "tercera")
	}
	if entries[1].Utterance != "segunda" {
		t.Errorf("second = %q, want %q", entries[1].Utterance, "segunda")
	}
}

// TestRecentEmpty returns no entries for a fresh journal.
func TestRecentEmpty(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	entries, err := j.Recent(5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}
