package resolver

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/render"
)

// Tokens lists every key the resolver guarantees to be present.
var Tokens = []string{
	"brand_name", "tagline", "website",
	"primary_color", "secondary_color", "accent_color", "text_color", "background_color",
	"heading_font", "body_font", "logo_url", "logo_dark_url",
	"headline", "subheadline", "description", "description_html",
	"cta", "cta_upper", "cta_url",
	"price", "original_price", "discount", "currency",
	"features", "badge",
	"hero_image", "product_image", "background_image",
	"has_logo", "has_price", "has_discount", "has_features", "has_hero_image",
	"locale",
}

var defaultValues = map[string]string{
	"primary_color":    "#1F2937",
	"secondary_color":  "#4B5563",
	"accent_color":     "#F59E0B",
	"text_color":       "#111827",
	"background_color": "#FFFFFF",
	"heading_font":     "Inter, Helvetica, Arial, sans-serif",
	"body_font":        "Inter, Helvetica, Arial, sans-serif",
	"cta_url":          "#",
}

type phrases struct {
	brandName string
	headline  string
	cta       string
}

var supported = []language.Tag{
	language.English,
	language.French,
	language.Spanish,
	language.German,
	language.Indonesian,
}

var localized = []phrases{
	{brandName: "Your Brand", headline: "Discover what's new", cta: "Learn more"},
	{brandName: "Votre marque", headline: "Découvrez la nouveauté", cta: "En savoir plus"},
	{brandName: "Tu marca", headline: "Descubre lo nuevo", cta: "Más información"},
	{brandName: "Ihre Marke", headline: "Entdecken Sie das Neue", cta: "Mehr erfahren"},
	{brandName: "Merek Anda", headline: "Temukan yang terbaru", cta: "Selengkapnya"},
}

var matcher = language.NewMatcher(supported)

type options struct {
	locale   string
	markdown goldmark.Markdown
}

// Option configures a Resolve call.
type Option func(*options)

// WithLocale selects the language used for fallback phrases and casing.
func WithLocale(locale string) Option {
	return func(o *options) { o.locale = locale }
}

// WithMarkdown replaces the engine used to build description_html.
func WithMarkdown(md goldmark.Markdown) Option {
	return func(o *options) {
		if md != nil {
			o.markdown = md
		}
	}
}

var defaultMarkdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))

// Resolve merges brand defaults, acquired images and user content into a
// render context. Content wins over images, images win over brand fields.
// Blank values fall through to the next source.
// Every token in Tokens is present afterwards and no value carries
// placeholder syntax.
func Resolve(brand *domain.Brand, content map[string]any, images map[string]string, opts ...Option) render.Context {
	o := options{markdown: defaultMarkdown}
	for _, opt := range opts {
		opt(&o)
	}
	tag, idx := matchLocale(o.locale)
	words := localized[idx]

	ctx := render.Context{}
	for k, v := range brandValues(brand) {
		if v != "" {
			ctx[k] = v
		}
	}
	for slot, url := range images {
		if !isBlank(url) {
			ctx[slot] = url
		}
	}
	for k, v := range content {
		if !isBlank(v) {
			ctx[k] = v
		}
	}

	if brand != nil && brand.Website != "" {
		setIfBlank(ctx, "cta_url", brand.Website)
	}
	for k, v := range defaultValues {
		setIfBlank(ctx, k, v)
	}
	setIfBlank(ctx, "brand_name", words.brandName)
	setIfBlank(ctx, "headline", words.headline)
	setIfBlank(ctx, "cta", words.cta)
	for _, k := range Tokens {
		if _, ok := ctx[k]; !ok {
			ctx[k] = ""
		}
	}
	if ctx["features"] == "" {
		ctx["features"] = []any{}
	}

	for k, v := range ctx {
		ctx[k] = neutralize(v)
	}

	if isBlank(ctx["discount"]) {
		if d, ok := discount(ctx["price"], ctx["original_price"]); ok {
			ctx["discount"] = d
		}
	}
	ctx["cta_upper"] = cases.Upper(tag).String(render.Stringify(ctx["cta"]))
	ctx["description_html"] = markdownHTML(o.markdown, render.Stringify(ctx["description"]))
	ctx["locale"] = tag.String()

	ctx["has_logo"] = !isBlank(ctx["logo_url"])
	ctx["has_price"] = !isBlank(ctx["price"])
	ctx["has_discount"] = !isBlank(ctx["discount"])
	ctx["has_features"] = isList(ctx["features"])
	ctx["has_hero_image"] = !isBlank(ctx["hero_image"])
	return ctx
}

func brandValues(b *domain.Brand) map[string]string {
	if b == nil {
		return nil
	}
	return map[string]string{
		"brand_name":       b.Name,
		"tagline":          b.Tagline,
		"website":          b.Website,
		"primary_color":    b.PrimaryColor,
		"secondary_color":  b.SecondaryColor,
		"accent_color":     b.AccentColor,
		"text_color":       b.TextColor,
		"background_color": b.BackgroundColor,
		"heading_font":     b.HeadingFont,
		"body_font":        b.BodyFont,
		"logo_url":         b.LogoURL,
		"logo_dark_url":    b.LogoDarkURL,
	}
}

func matchLocale(raw string) (language.Tag, int) {
	if strings.TrimSpace(raw) == "" {
		return supported[0], 0
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return supported[0], 0
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return supported[0], 0
	}
	return supported[idx], idx
}

func setIfBlank(ctx render.Context, key, value string) {
	if isBlank(ctx[key]) {
		ctx[key] = value
	}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func isList(v any) bool {
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case []map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

// neutralize removes placeholder delimiters from strings, recursing into
// lists and objects.
func neutralize(v any) any {
	switch t := v.(type) {
	case string:
		return neutralizeString(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = neutralizeString(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = neutralize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = neutralize(item)
		}
		return out
	default:
		return v
	}
}

func neutralizeString(s string) string {
	for strings.Contains(s, "{{") || strings.Contains(s, "}}") {
		s = strings.ReplaceAll(s, "{{", "{ {")
		s = strings.ReplaceAll(s, "}}", "} }")
	}
	return s
}

func discount(price, original any) (string, bool) {
	p, ok := number(price)
	if !ok {
		return "", false
	}
	orig, ok := number(original)
	if !ok || orig <= 0 || p <= 0 || p >= orig {
		return "", false
	}
	pct := math.Round((orig - p) / orig * 100)
	if pct <= 0 {
		return "", false
	}
	return strconv.Itoa(int(pct)) + "%", true
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, t)
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func markdownHTML(md goldmark.Markdown, src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}
