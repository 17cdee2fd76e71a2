package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

const (
	ErrorPenalty   = 15
	WarningPenalty = 5
)

// Issue codes reported by the built-in checks.
const (
	CodeImageMissingSrc       = "image_missing_src"
	CodeImageMissingAlt       = "image_missing_alt"
	CodeMissingCTA            = "missing_cta"
	CodeHeadlineTooLong       = "headline_too_long"
	CodeUnresolvedPlaceholder = "unresolved_placeholder"
	CodeUnknownFormat         = "unknown_format"
	CodeCheckFailed           = "check_failed"
	CodeUnparseable           = "unparseable_markup"
)

// Document is the parsed creative handed to each check.
type Document struct {
	Raw    string
	Root   *html.Node
	Format domain.Format
	Spec   domain.FormatSpec
	Known  bool
}

// Findings collects the issues raised by checks.
type Findings struct {
	Errors   []domain.Issue
	Warnings []domain.Issue
}

func (f *Findings) Error(code, format string, args ...any) {
	f.Errors = append(f.Errors, domain.Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (f *Findings) Warn(code, format string, args ...any) {
	f.Warnings = append(f.Warnings, domain.Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Check inspects a document and records findings.
type Check struct {
	Name string
	Run  func(doc *Document, f *Findings)
}

// DefaultChecks run in order: images, call-to-action, heading length,
// leftover placeholders, then format.
var DefaultChecks = []Check{
	{Name: "images", Run: checkImages},
	{Name: "cta", Run: checkCTA},
	{Name: "headings", Run: checkHeadings},
	{Name: "placeholders", Run: checkPlaceholders},
	{Name: "format", Run: checkFormat},
}

// Validator scores rendered creatives.
type Validator struct {
	checks []Check
}

// New returns a validator running checks, or DefaultChecks when none are given.
func New(checks ...Check) *Validator {
	if len(checks) == 0 {
		checks = DefaultChecks
	}
	return &Validator{checks: checks}
}

// Validate runs the default checks against markup for format.
func Validate(markup string, format domain.Format) domain.Report {
	return New().Validate(markup, format)
}

// Validate parses markup and runs every check. A check that panics is
// reported as a warning instead of aborting validation.
func (v *Validator) Validate(markup string, format domain.Format) domain.Report {
	var f Findings
	spec, known := format.Spec()
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		f.Error(CodeUnparseable, "markup could not be parsed: %v", err)
		return Score(f)
	}
	doc := &Document{Raw: markup, Root: root, Format: format, Spec: spec, Known: known}
	for _, c := range v.checks {
		runGuarded(c, doc, &f)
	}
	return Score(f)
}

func runGuarded(c Check, doc *Document, f *Findings) {
	defer func() {
		if r := recover(); r != nil {
			f.Warn(CodeCheckFailed, "check %s failed: %v", c.Name, r)
		}
	}()
	c.Run(doc, f)
}

// Score converts findings into a report.
func Score(f Findings) domain.Report {
	score := 100 - ErrorPenalty*len(f.Errors) - WarningPenalty*len(f.Warnings)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	errs := f.Errors
	if errs == nil {
		errs = []domain.Issue{}
	}
	warns := f.Warnings
	if warns == nil {
		warns = []domain.Issue{}
	}
	return domain.Report{
		Valid:    len(f.Errors) == 0,
		Errors:   errs,
		Warnings: warns,
		Score:    score,
	}
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func checkImages(doc *Document, f *Findings) {
	index := 0
	walk(doc.Root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.Img {
			return
		}
		index++
		if src, _ := attr(n, "src"); strings.TrimSpace(src) == "" {
			f.Error(CodeImageMissingSrc, "image %d has no source", index)
		}
		if _, ok := attr(n, "alt"); !ok {
			f.Warn(CodeImageMissingAlt, "image %d has no alternative text", index)
		}
	})
}

func isCTA(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.DataAtom == atom.Button {
		return true
	}
	if n.DataAtom == atom.Input {
		if typ, _ := attr(n, "type"); typ == "submit" || typ == "button" {
			return true
		}
	}
	if role, _ := attr(n, "role"); role == "button" {
		return true
	}
	if _, ok := attr(n, "data-cta"); ok {
		return true
	}
	class, _ := attr(n, "class")
	for _, c := range strings.Fields(strings.ToLower(class)) {
		if strings.Contains(c, "cta") || strings.Contains(c, "btn") || strings.Contains(c, "button") {
			return true
		}
	}
	return false
}

func checkCTA(doc *Document, f *Findings) {
	found := false
	walk(doc.Root, func(n *html.Node) {
		if !found && isCTA(n) {
			found = true
		}
	})
	if !found {
		f.Warn(CodeMissingCTA, "no call-to-action element found")
	}
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func checkHeadings(doc *Document, f *Findings) {
	if !doc.Known {
		return
	}
	limit := doc.Spec.HeadlineLimit
	walk(doc.Root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3:
		default:
			return
		}
		if l := utf8.RuneCountInString(textOf(n)); l > limit {
			f.Warn(CodeHeadlineTooLong, "%s text is %d characters, limit for %s is %d", n.Data, l, doc.Format, limit)
		}
	})
}

func checkPlaceholders(doc *Document, f *Findings) {
	if strings.Contains(doc.Raw, "{{") {
		f.Error(CodeUnresolvedPlaceholder, "markup contains unresolved placeholder syntax")
	}
}

func checkFormat(doc *Document, f *Findings) {
	if !doc.Known {
		f.Warn(CodeUnknownFormat, "format %q is not in the dimension table", doc.Format)
	}
}
