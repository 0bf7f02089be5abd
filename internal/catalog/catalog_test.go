package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/schemetrust/internal/model"
)

func TestNewStatic_OrderAndDuplicates(t *testing.T) {
	c := NewStatic(
		model.Scheme{ID: "pm-kisan", Name: "PM Kisan"},
		model.Scheme{ID: "mgnrega", Name: "MGNREGA"},
		model.Scheme{ID: "pm-kisan", Name: "Pradhan Mantri Kisan Samman Nidhi"},
	)

	if c.Len() != 2 {
		t.Fatalf("expected 2 schemes, got %d", c.Len())
	}
	list := c.List()
	if list[0].ID != "mgnrega" || list[1].ID != "pm-kisan" {
		t.Errorf("expected schemes sorted by id, got %v", list)
	}
	if s, _ := c.Get("pm-kisan"); s.Name != "Pradhan Mantri Kisan Samman Nidhi" {
		t.Errorf("expected later duplicate to win, got %q", s.Name)
	}
	if _, ok := c.Get("unknown"); ok {
		t.Error("expected miss for unknown scheme")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemes.yaml")
	content := `schemes:
  - id: pm-kisan
    name: Pradhan Mantri Kisan Samman Nidhi
    ministry: Ministry of Agriculture and Farmers Welfare
    aliases: [PM-KISAN]
  - id: mgnrega
    name: Mahatma Gandhi National Rural Employment Guarantee Act
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	s, ok := c.Get("pm-kisan")
	if !ok {
		t.Fatal("expected pm-kisan")
	}
	if s.Ministry != "Ministry of Agriculture and Farmers Welfare" || len(s.Aliases) != 1 {
		t.Errorf("unexpected scheme: %+v", s)
	}
	if names := s.SearchNames(); len(names) != 2 || names[1] != "PM-KISAN" {
		t.Errorf("unexpected search names: %v", names)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemes.yaml")
	_ = os.WriteFile(path, []byte("schemes:\n  - name: No ID\n  - id: x\n"), 0o644)

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "missing id") || !strings.Contains(err.Error(), "missing name") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}
