package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/render"
)

//go:embed builtin/*.html
var builtinFS embed.FS

const metadataSchema = `{
  "type": "object",
  "required": ["id", "name", "format", "category"],
  "properties": {
    "id": {"type": "string", "pattern": "^[a-z0-9][a-z0-9-]*$"},
    "name": {"type": "string", "minLength": 1},
    "format": {"enum": ["landscape", "square", "story"]},
    "category": {"type": "string", "pattern": "^[a-z0-9][a-z0-9-]*$"},
    "tokens": {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("template.json", strings.NewReader(metadataSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("template.json")
}

// Store is a read-only catalog of parsed templates. It is safe for
// concurrent use once constructed.
type Store struct {
	byID     map[string]*render.Compiled
	byLookup map[lookupKey]string
	ids      []string
}

type lookupKey struct {
	format   domain.Format
	category string
}

type options struct {
	dir         string
	skipBuiltin bool
}

// Option configures the store loader.
type Option func(*options)

// WithDir overlays every .html file found in dir on top of the builtin set.
// A file sharing an id with a builtin template replaces it.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithoutBuiltin skips the embedded templates.
func WithoutBuiltin() Option {
	return func(o *options) { o.skipBuiltin = true }
}

// New loads the builtin templates plus any overlay directory.
func New(opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{byID: map[string]*render.Compiled{}, byLookup: map[lookupKey]string{}}
	if !o.skipBuiltin {
		sub, err := fs.Sub(builtinFS, "builtin")
		if err != nil {
			return nil, err
		}
		if err := s.loadFS(sub); err != nil {
			return nil, fmt.Errorf("templates: builtin: %w", err)
		}
	}
	if o.dir != "" {
		if err := s.loadFS(os.DirFS(o.dir)); err != nil {
			return nil, fmt.Errorf("templates: %s: %w", o.dir, err)
		}
	}
	s.index()
	return s, nil
}

func (s *Store) loadFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".html" {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		c, err := ParseFile(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		s.byID[c.Template.ID] = c
		return nil
	})
}

func (s *Store) index() {
	s.ids = s.ids[:0]
	for id := range s.byID {
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)
	for _, id := range s.ids {
		t := s.byID[id].Template
		key := lookupKey{format: t.Format, category: t.Category}
		if _, ok := s.byLookup[key]; !ok {
			s.byLookup[key] = id
		}
	}
}

// Get returns the template with id.
func (s *Store) Get(id string) (domain.Template, error) {
	c, err := s.Compiled(id)
	if err != nil {
		return domain.Template{}, err
	}
	return c.Template, nil
}

// Compiled returns the parsed form of the template with id.
func (s *Store) Compiled(id string) (*render.Compiled, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
	}
	return c, nil
}

// Lookup returns the template for format within category.
func (s *Store) Lookup(format domain.Format, category string) (*render.Compiled, error) {
	id, ok := s.byLookup[lookupKey{format: format, category: category}]
	if !ok {
		return nil, fmt.Errorf("%w: no %s template in category %s", domain.ErrTemplateNotFound, format, category)
	}
	return s.byID[id], nil
}

// List returns every template ordered by id.
func (s *Store) List() []domain.Template {
	out := make([]domain.Template, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id].Template)
	}
	return out
}

// Metadata is the frontmatter header of a template file.
type Metadata struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Format   string   `json:"format"`
	Category string   `json:"category"`
	Tokens   []string `json:"tokens"`
}

// ErrInvalidTemplate is returned for files that fail metadata or markup checks.
var ErrInvalidTemplate = errors.New("invalid template")

// ParseFile reads a template file: YAML frontmatter followed by markup and
// an optional <style> block.
func ParseFile(data []byte) (*render.Compiled, error) {
	var raw map[string]any
	body, err := frontmatter.MustParse(bytes.NewReader(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: frontmatter: %v", ErrInvalidTemplate, err)
	}
	if err := compiledSchema.Validate(normalize(raw)); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidTemplate, err)
	}
	encoded, err := json.Marshal(normalize(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidTemplate, err)
	}
	var meta Metadata
	if err := json.Unmarshal(encoded, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidTemplate, err)
	}

	markup, style := splitStyle(string(body))
	tpl := domain.Template{
		ID:       meta.ID,
		Name:     meta.Name,
		Format:   domain.Format(meta.Format),
		Category: meta.Category,
		Markup:   markup,
		Style:    style,
		Tokens:   meta.Tokens,
	}
	c, err := render.Compile(tpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if len(c.Template.Tokens) == 0 {
		c.Template.Tokens = c.References()
	}
	return c, nil
}

// splitStyle separates the last <style> block from the markup.
func splitStyle(body string) (string, string) {
	lower := strings.ToLower(body)
	start := strings.LastIndex(lower, "<style")
	if start < 0 {
		return strings.TrimSpace(body), ""
	}
	open := strings.Index(lower[start:], ">")
	end := strings.Index(lower[start:], "</style>")
	if open < 0 || end < 0 || end < open {
		return strings.TrimSpace(body), ""
	}
	css := body[start+open+1 : start+end]
	markup := body[:start] + body[start+end+len("</style>"):]
	return strings.TrimSpace(markup), strings.TrimSpace(css)
}

// normalize converts YAML-decoded values into the JSON shapes the schema
// validator expects.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case int:
		return float64(t)
	default:
		return v
	}
}
