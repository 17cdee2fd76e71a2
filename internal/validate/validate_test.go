package validate

import (
	"strings"
	"testing"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

const cleanMarkup = `<div class="ad"><h1>Summer sale</h1><img src="https://cdn/x.png" alt="shoe"><a class="cta-button" href="#">Shop</a></div>`

func codes(issues []domain.Issue) string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return strings.Join(out, ",")
}

func TestValidateCleanScoresHundred(t *testing.T) {
	r := Validate(cleanMarkup, domain.FormatSquare)
	if !r.Valid || r.Score != 100 {
		t.Fatalf("report = %+v, want valid with score 100", r)
	}
	if len(r.Errors) != 0 || len(r.Warnings) != 0 {
		t.Fatalf("unexpected findings: %+v", r)
	}
}

func TestValidateChecks(t *testing.T) {
	long := strings.Repeat("a", 126)
	tests := []struct {
		name     string
		markup   string
		format   domain.Format
		errors   string
		warnings string
		score    int
	}{
		{
			name:   "image without src",
			markup: `<img alt="x"><button>Go</button>`,
			format: domain.FormatSquare,
			errors: CodeImageMissingSrc,
			score:  85,
		},
		{
			name:   "image with blank src",
			markup: `<img src="  " alt="x"><button>Go</button>`,
			format: domain.FormatSquare,
			errors: CodeImageMissingSrc,
			score:  85,
		},
		{
			name:     "missing alt is a warning",
			markup:   `<img src="a.png"><button>Go</button>`,
			format:   domain.FormatSquare,
			warnings: CodeImageMissingAlt,
			score:    95,
		},
		{
			name:     "no cta",
			markup:   `<p>hello</p>`,
			format:   domain.FormatSquare,
			warnings: CodeMissingCTA,
			score:    95,
		},
		{
			name:   "role button counts as cta",
			markup: `<span role="button">Go</span>`,
			format: domain.FormatSquare,
			score:  100,
		},
		{
			name:   "data-cta counts as cta",
			markup: `<a data-cta href="#">Go</a>`,
			format: domain.FormatSquare,
			score:  100,
		},
		{
			name:     "long heading for square",
			markup:   `<h2>` + long + `</h2><button>Go</button>`,
			format:   domain.FormatSquare,
			warnings: CodeHeadlineTooLong,
			score:    95,
		},
		{
			name:   "same heading fits landscape",
			markup: `<h2>` + long + `</h2><button>Go</button>`,
			format: domain.FormatLandscape,
			score:  100,
		},
		{
			name:   "leftover placeholder",
			markup: `<p>{{headline}}</p><button>Go</button>`,
			format: domain.FormatSquare,
			errors: CodeUnresolvedPlaceholder,
			score:  85,
		},
		{
			name:     "unknown format",
			markup:   `<button>Go</button>`,
			format:   domain.Format("banner"),
			warnings: CodeUnknownFormat,
			score:    95,
		},
		{
			name:     "errors and warnings combine",
			markup:   `<img><img>`,
			format:   domain.FormatSquare,
			errors:   CodeImageMissingSrc + "," + CodeImageMissingSrc,
			warnings: CodeImageMissingAlt + "," + CodeImageMissingAlt + "," + CodeMissingCTA,
			score:    55,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Validate(tc.markup, tc.format)
			if got := codes(r.Errors); got != tc.errors {
				t.Fatalf("errors = %q, want %q", got, tc.errors)
			}
			if got := codes(r.Warnings); got != tc.warnings {
				t.Fatalf("warnings = %q, want %q", got, tc.warnings)
			}
			if r.Score != tc.score {
				t.Fatalf("score = %d, want %d", r.Score, tc.score)
			}
			if r.Valid != (tc.errors == "") {
				t.Fatalf("valid = %v with errors %q", r.Valid, tc.errors)
			}
		})
	}
}

func TestValidateScoreClampsAtZero(t *testing.T) {
	markup := strings.Repeat("<img>", 10)
	r := Validate(markup, domain.FormatStory)
	if r.Score != 0 {
		t.Fatalf("score = %d, want 0", r.Score)
	}
	if r.Valid {
		t.Fatal("report with errors must be invalid")
	}
}

func TestValidateMonotonic(t *testing.T) {
	base := Validate(cleanMarkup, domain.FormatSquare)
	markup := cleanMarkup
	prev := base.Score
	for i := 0; i < 8; i++ {
		markup += "<img>"
		r := Validate(markup, domain.FormatSquare)
		if r.Score > prev {
			t.Fatalf("score increased from %d to %d after adding an error", prev, r.Score)
		}
		prev = r.Score
	}
}

func TestValidateWarningsNeverInvalidate(t *testing.T) {
	markup := `<h1>` + strings.Repeat("x", 400) + `</h1><img src="a.png"><img src="b.png">`
	r := Validate(markup, domain.FormatStory)
	if !r.Valid {
		t.Fatalf("warnings alone must not invalidate: %+v", r)
	}
	if len(r.Warnings) == 0 {
		t.Fatal("expected warnings")
	}
}

func TestValidatePanickingCheckBecomesWarning(t *testing.T) {
	boom := Check{Name: "boom", Run: func(*Document, *Findings) { panic("kaboom") }}
	v := New(append([]Check{boom}, DefaultChecks...)...)
	r := v.Validate(cleanMarkup, domain.FormatSquare)
	if !r.Valid {
		t.Fatalf("panicking check must not invalidate: %+v", r)
	}
	if got := codes(r.Warnings); got != CodeCheckFailed {
		t.Fatalf("warnings = %q, want %q", got, CodeCheckFailed)
	}
	if r.Score != 95 {
		t.Fatalf("score = %d, want 95", r.Score)
	}
}
