package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestWrite(t *testing.T) {
	doc := map[string]any{"status": "completed", "books": 3}

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, YAML, doc); err != nil {
			t.Fatalf("Write: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "status: completed") || !strings.Contains(out, "books: 3") {
			t.Errorf("unexpected yaml output:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, JSON, doc); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !strings.Contains(buf.String(), `"status": "completed"`) {
			t.Errorf("unexpected json output:\n%s", buf.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, Format("toml"), doc); err == nil {
			t.Fatal("expected an error for an unknown format")
		}
	})
}

func TestJSONKeys(t *testing.T) {
	type snapshot struct {
		TotalBooks int    `json:"total_books"`
		Status     string `json:"status"`
	}
	doc, err := JSONKeys(snapshot{TotalBooks: 12, Status: "in_progress"})
	if err != nil {
		t.Fatalf("JSONKeys: %v", err)
	}
	if _, ok := doc["total_books"]; !ok {
		t.Errorf("missing total_books key, got %v", doc)
	}
	if _, ok := doc["TotalBooks"]; ok {
		t.Error("struct field name leaked into the document")
	}
}

func TestSetFormat(t *testing.T) {
	t.Cleanup(func() { SetFormat("yaml") })

	SetFormat("json")
	if active != JSON {
		t.Fatalf("active = %q, want json", active)
	}
	SetFormat("nonsense")
	if active != YAML {
		t.Fatalf("active = %q, want yaml fallback", active)
	}
}
