package epub

import "testing"

func TestEscapeDirname(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		windows bool
		want    string
	}{
		{"plain title untouched", "Plain Title", false, "Plain Title"},
		{"early colon becomes underscore", "Go: The Complete Guide", false, "Go_ The Complete Guide"},
		{"early colon becomes comma on windows", "Go: The Complete Guide", true, "Go, The Complete Guide"},
		{"late colon drops the subtitle", "Advanced Programming: A Field Guide", false, "Advanced Programming"},
		{"late colon drops the subtitle on windows too", "Advanced Programming: A Field Guide", true, "Advanced Programming"},
		{"forbidden charset replaced", "Weird ~#%& Title?", false, "Weird ____ Title_"},
		{"plus signs replaced", "C++ How to Program", false, "C__ How to Program"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeDirname(tt.title, tt.windows); got != tt.want {
				t.Errorf("escapeDirname(%q, %v) = %q, want %q", tt.title, tt.windows, got, tt.want)
			}
		})
	}
}

func TestBookDirName(t *testing.T) {
	tests := []struct {
		title string
		id    string
		want  string
	}{
		{"Kubernetes, Up and Running, Third Edition", "999", "Kubernetes Up and Running (999)"},
		{"Plain", "1", "Plain (1)"},
		{"One, Two", "7", "One Two (7)"},
	}
	for _, tt := range tests {
		if got := BookDirName(tt.title, tt.id); got != tt.want {
			t.Errorf("BookDirName(%q, %q) = %q, want %q", tt.title, tt.id, got, tt.want)
		}
	}
}

func TestArchiveName(t *testing.T) {
	t.Run("strips punctuation and joins authors", func(t *testing.T) {
		got := ArchiveName("Go: The Guide!", "Ann Dev, Bo Coder", Enhanced)
		want := "Go The Guide - Ann Dev Bo Coder.epub"
		if got != want {
			t.Errorf("ArchiveName() = %q, want %q", got, want)
		}
	})

	t.Run("kindle variant gets a marker", func(t *testing.T) {
		got := ArchiveName("Go Patterns", "Ann Dev", Kindle)
		want := "Go Patterns - Ann Dev (Kindle).epub"
		if got != want {
			t.Errorf("ArchiveName() = %q, want %q", got, want)
		}
	})

	t.Run("trailing spaces trimmed", func(t *testing.T) {
		got := ArchiveName("Title!!", "A.", Legacy)
		want := "Title - A.epub"
		if got != want {
			t.Errorf("ArchiveName() = %q, want %q", got, want)
		}
	})
}

func TestXHTMLName(t *testing.T) {
	if got := xhtmlName("ch01.html"); got != "ch01.xhtml" {
		t.Errorf("xhtmlName(ch01.html) = %q", got)
	}
	if got := xhtmlName("notes.xhtml"); got != "notes.xhtml" {
		t.Errorf("xhtmlName(notes.xhtml) = %q", got)
	}
}

func TestItemID(t *testing.T) {
	if got := itemID("ch01.xhtml"); got != "ch01" {
		t.Errorf("itemID(ch01.xhtml) = %q", got)
	}
	if got := itemID("a.b.xhtml"); got != "ab" {
		t.Errorf("itemID(a.b.xhtml) = %q", got)
	}
}

func TestImageMediaType(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"cover.jpg", "image/jpeg"},
		{"cover.jpeg", "image/jpeg"},
		{"fig.png", "image/png"},
		{"anim.gif", "image/gif"},
		{"noext", "image/png"},
	}
	for _, tt := range tests {
		if got := imageMediaType(tt.file); got != tt.want {
			t.Errorf("imageMediaType(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}
