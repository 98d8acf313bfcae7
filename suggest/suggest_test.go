package suggest_test

import (
	"fmt"
	"testing"

	"github.com/diversitus/infra/suggest"
)

func ExampleString() {
	userProvided := "jobs-tabel"
	candidates := []string{"jobs-table", "users-table"}

	suggestion := suggest.String(userProvided, candidates)
	fmt.Printf("Did you mean %q?", suggestion)
	// Output: Did you mean "jobs-table"?
}

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		options []string
		want    string
	}{
		{"Exact", "foo", []string{"bar", "foo"}, "foo"},
		{"Almost", "boo", []string{"bar", "foo"}, "foo"},
		{"NoMatch", "go", []string{"bar", "foo"}, ""},
		{"Long", "Lorem lipsam", []string{"Lorem ipsum", "Lorem dolor"}, "Lorem ipsum"},
		{"SkipEmpty", "a", []string{""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := suggest.String(tt.input, tt.options)
			if got != tt.want {
				t.Errorf("String(%s, %v) got = %q, want = %q", tt.input, tt.options, got, tt.want)
			}
		})
	}
}

func TestDidYouMean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Close", "zome", `, did you mean "zone"?`},
		{"Exact", "zone", ""},
		{"Far", "certificate", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := suggest.DidYouMean(tt.input, []string{"zone", "table"})
			if got != tt.want {
				t.Errorf("DidYouMean(%q) got = %q, want = %q", tt.input, got, tt.want)
			}
		})
	}
}
