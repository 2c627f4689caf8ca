package discovery

import (
	"reflect"
	"testing"
)

func TestVariants(t *testing.T) {
	tests := []struct {
		name    string
		skill   string
		aliases []string
		catalog []string
		lenient bool
		want    []string
	}{
		{
			name:  "single word strict",
			skill: "Python",
			want:  []string{"Python"},
		},
		{
			name:  "multiword gets separator rewrites",
			skill: "Machine Learning",
			want: []string{
				"Machine Learning", "Machine-Learning",
				"Machine_Learning", "Machine+Learning",
			},
		},
		{
			name:    "aliases fill the cap in lenient mode",
			skill:   "Web APIs",
			aliases: []string{"Web API", "REST APIs", "API Design"},
			lenient: true,
			want: []string{
				"Web APIs", "Web-APIs", "Web_APIs", "Web+APIs", "Web API",
			},
		},
		{
			name:    "catalog names sharing a token join in lenient mode",
			skill:   "Deep Learning",
			catalog: []string{"Deep Learning", "Machine Learning", "Business"},
			lenient: true,
			want: []string{
				"Deep Learning", "Deep-Learning", "Deep_Learning",
				"Deep+Learning", "Machine Learning",
			},
		},
		{
			name:    "duplicates collapse",
			skill:   "Go",
			aliases: []string{"Go", "Golang"},
			lenient: true,
			want:    []string{"Go", "Golang"},
		},
		{
			name:    "strict mode ignores aliases and catalog",
			skill:   "Rust",
			aliases: []string{"Rust Programming"},
			catalog: []string{"Rust", "Rust in Action"},
			want:    []string{"Rust"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Variants(tc.skill, tc.aliases, tc.catalog, tc.lenient)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Variants(%q) = %v, want %v", tc.skill, got, tc.want)
			}
		})
	}
}

func TestCatalogCandidates(t *testing.T) {
	catalog := []string{"Machine Learning", "Deep Learning", "Business", "AI & ML"}

	t.Run("matches on shared tokens", func(t *testing.T) {
		got := catalogCandidates("Machine Learning", catalog)
		want := []string{"Deep Learning"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("skills sharing no words match nothing", func(t *testing.T) {
		if got := catalogCandidates("Go", catalog); got != nil {
			t.Errorf("got %v, want none", got)
		}
	})

	t.Run("short names still match as whole words", func(t *testing.T) {
		got := catalogCandidates("ML", catalog)
		want := []string{"AI & ML"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("the skill itself is never a candidate", func(t *testing.T) {
		for _, name := range catalogCandidates("Business", catalog) {
			if name == "Business" {
				t.Error("candidate list contains the skill itself")
			}
		}
	})
}
