package definition

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMinimalDefinition(t *testing.T) {
	yaml := []byte(`
name: minimal
operations:
  - key: one
    handler: text
    with:
      field: one
`)
	d, err := Load(yaml)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name != "minimal" {
		t.Errorf("expected name 'minimal', got %q", d.Name)
	}
	if d.Collection != "minimal" {
		t.Errorf("expected collection to default to name, got %q", d.Collection)
	}
	if d.RouteName() != DefaultRoute {
		t.Errorf("expected default route, got %q", d.RouteName())
	}
	if len(d.Operations) != 1 || d.Operations[0].With["field"] != "one" {
		t.Fatalf("unexpected operations: %+v", d.Operations)
	}
}

func TestLoadFullFeaturedDefinition(t *testing.T) {
	yaml := []byte(`
name: page_variant
label: Page variant
collection: page_manager.page_variant
route: page_variant.step
finish_route: page_variant.done
defaults:
  label: ""
operations:
  - key: general
    handler: text
    title: General
    with:
      field: description
  - key: selection
    handler: text
    title: Selection criteria
    with:
      field: note
conditions:
  slot: selection_criteria
  contexts_slot: contexts
  return_step: selection
`)
	d, err := Load(yaml)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Collection != "page_manager.page_variant" {
		t.Errorf("unexpected collection %q", d.Collection)
	}
	if d.RouteName() != "page_variant.step" {
		t.Errorf("unexpected route %q", d.RouteName())
	}
	if got := d.Keys(); len(got) != 2 || got[0] != "general" || got[1] != "selection" {
		t.Errorf("unexpected keys %v", got)
	}
	if d.Index("selection") != 1 || d.Index("missing") != -1 {
		t.Error("unexpected Index results")
	}
	if d.Conditions == nil || d.Conditions.Slot != "selection_criteria" || d.Conditions.ReturnStep != "selection" {
		t.Errorf("unexpected conditions %+v", d.Conditions)
	}
	if d.Operations[0].Title != "General" {
		t.Errorf("expected title 'General', got %q", d.Operations[0].Title)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	if _, err := Load([]byte(`:::not valid yaml[[[`)); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadRejectsEmptyOperations(t *testing.T) {
	if _, err := Load([]byte("name: empty\noperations: []\n")); err == nil {
		t.Fatal("expected error for definition without operations")
	}
}

func TestLoadRejectsMissingName(t *testing.T) {
	if _, err := Load([]byte("operations:\n  - key: one\n    handler: text\n")); err == nil {
		t.Fatal("expected error for definition with no name")
	}
}

func TestLoadDirRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	body := "name: same\noperations:\n  - key: one\n    handler: text\n"
	for _, f := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected error for duplicate wizard names")
	}
}

func TestLoadDirSortsAndSkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.yaml":    "name: second\noperations:\n  - key: one\n    handler: text\n",
		"a.yaml":    "name: first\noperations:\n  - key: one\n    handler: text\n",
		"notes.txt": "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 2 || defs[0].Name != "first" || defs[1].Name != "second" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
}
