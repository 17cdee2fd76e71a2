package optimize

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultTransitionProperties replaces a broad "all" transition.
const DefaultTransitionProperties = "opacity, transform"

// Optimizer rewrites markup for delivery without changing visible content.
type Optimizer struct {
	transitionProps string
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithTransitionProperties overrides the property list substituted for
// "transition: all".
func WithTransitionProperties(props string) Option {
	return func(o *Optimizer) {
		if strings.TrimSpace(props) != "" {
			o.transitionProps = props
		}
	}
}

// New returns an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{transitionProps: DefaultTransitionProperties}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize runs the default optimizer.
func Optimize(markup string) string {
	return New().Optimize(markup)
}

// OptimizeCSS runs the default optimizer on a stylesheet.
func OptimizeCSS(css string) string {
	return New().OptimizeCSS(css)
}

// Optimize compacts whitespace, defers non-critical images and narrows broad
// transitions. It returns markup unchanged when anything goes wrong.
func (o *Optimizer) Optimize(markup string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = markup
		}
	}()
	res, err := o.optimizeHTML(markup)
	if err != nil {
		return markup
	}
	return res
}

// OptimizeCSS compacts a stylesheet and narrows broad transitions. It returns
// css unchanged when anything goes wrong.
func (o *Optimizer) OptimizeCSS(css string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = css
		}
	}()
	return o.css(css)
}

var inlineElements = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Bdi: true, atom.Bdo: true,
	atom.Br: true, atom.Cite: true, atom.Code: true, atom.Data: true, atom.Em: true,
	atom.I: true, atom.Img: true, atom.Kbd: true, atom.Label: true, atom.Mark: true,
	atom.Q: true, atom.S: true, atom.Small: true, atom.Span: true, atom.Strong: true,
	atom.Sub: true, atom.Sup: true, atom.Time: true, atom.U: true, atom.Var: true,
	atom.Button: true, atom.Input: true,
}

var preserveBody = map[atom.Atom]bool{
	atom.Pre: true, atom.Textarea: true, atom.Script: true,
}

type piece struct {
	tt     html.TokenType
	data   string
	atom   atom.Atom
	inline bool
}

func (o *Optimizer) optimizeHTML(markup string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var pieces []piece
	preserveDepth := 0
	inStyle := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("optimize: tokenize: %w", err)
			}
			break
		}
		raw := string(z.Raw())
		switch tt {
		case html.TextToken:
			switch {
			case preserveDepth > 0:
				pieces = append(pieces, piece{tt: tt, data: raw})
			case inStyle:
				pieces = append(pieces, piece{tt: tt, data: o.css(raw)})
			default:
				pieces = append(pieces, piece{tt: tt, data: raw})
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			a := tok.DataAtom
			data := raw
			if a == atom.Img {
				data = o.rewriteImage(tok, tt == html.SelfClosingTagToken)
			} else if style, ok := attrValue(tok, "style"); ok {
				if narrowed := o.narrowTransitions(style); narrowed != style {
					setAttr(&tok, "style", narrowed)
					data = tok.String()
				}
			}
			if tt == html.StartTagToken {
				if preserveBody[a] {
					preserveDepth++
				}
				if a == atom.Style {
					inStyle = true
				}
			}
			pieces = append(pieces, piece{tt: tt, data: data, atom: a, inline: inlineElements[a]})
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if preserveBody[a] && preserveDepth > 0 {
				preserveDepth--
			}
			if a == atom.Style {
				inStyle = false
			}
			pieces = append(pieces, piece{tt: tt, data: raw, atom: a, inline: inlineElements[a]})
		default:
			pieces = append(pieces, piece{tt: tt, data: raw})
		}
	}
	return compact(pieces), nil
}

// compact collapses whitespace in text between tags. Whitespace-only text is
// dropped unless it separates two inline neighbours, where one space remains.
// Comments are looked through when finding neighbours.
func compact(pieces []piece) string {
	var b strings.Builder
	preserve := 0
	spacedAfter := -1
	for i, p := range pieces {
		if p.tt == html.StartTagToken && preserveBody[p.atom] {
			preserve++
		}
		if p.tt == html.EndTagToken && preserveBody[p.atom] && preserve > 0 {
			preserve--
		}
		if p.tt != html.TextToken || preserve > 0 {
			b.WriteString(p.data)
			continue
		}
		collapsed := collapseSpace(p.data)
		if strings.TrimSpace(collapsed) != "" {
			if i == 0 {
				collapsed = strings.TrimLeft(collapsed, " ")
			}
			if i == len(pieces)-1 {
				collapsed = strings.TrimRight(collapsed, " ")
			}
			b.WriteString(collapsed)
			continue
		}
		left, right := neighbour(pieces, i, -1), neighbour(pieces, i, 1)
		if left < 0 || right < 0 || left == spacedAfter {
			continue
		}
		if !flowing(pieces[left]) || !flowing(pieces[right]) {
			continue
		}
		if pieces[left].tt == html.TextToken && strings.HasSuffix(collapseSpace(pieces[left].data), " ") {
			continue
		}
		if pieces[right].tt == html.TextToken && strings.HasPrefix(collapseSpace(pieces[right].data), " ") {
			continue
		}
		b.WriteByte(' ')
		spacedAfter = left
	}
	return b.String()
}

// neighbour returns the index of the nearest piece in direction dir that is
// neither a comment nor whitespace-only text, or -1.
func neighbour(pieces []piece, i, dir int) int {
	for j := i + dir; j >= 0 && j < len(pieces); j += dir {
		p := pieces[j]
		if p.tt == html.CommentToken {
			continue
		}
		if p.tt == html.TextToken && strings.TrimSpace(p.data) == "" {
			continue
		}
		return j
	}
	return -1
}

// flowing reports whether p sits in inline flow: an inline element or text.
func flowing(p piece) bool {
	return p.inline || p.tt == html.TextToken
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func attrValue(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(tok *html.Token, key, val string) {
	for i, a := range tok.Attr {
		if a.Key == key {
			tok.Attr[i].Val = val
			return
		}
	}
	tok.Attr = append(tok.Attr, html.Attribute{Key: key, Val: val})
}

func isCritical(tok html.Token) bool {
	if v, ok := attrValue(tok, "data-critical"); ok && v != "false" {
		return true
	}
	if v, _ := attrValue(tok, "fetchpriority"); strings.EqualFold(v, "high") {
		return true
	}
	return false
}

func (o *Optimizer) rewriteImage(tok html.Token, selfClosing bool) string {
	if isCritical(tok) {
		setAttr(&tok, "loading", "eager")
	} else {
		setAttr(&tok, "loading", "lazy")
		if _, ok := attrValue(tok, "decoding"); !ok {
			setAttr(&tok, "decoding", "async")
		}
	}
	if style, ok := attrValue(tok, "style"); ok {
		setAttr(&tok, "style", o.narrowTransitions(style))
	}
	if selfClosing {
		tok.Type = html.SelfClosingTagToken
	} else {
		tok.Type = html.StartTagToken
	}
	return tok.String()
}

var (
	transitionAll     = regexp.MustCompile(`(?i)(transition\s*:\s*)all\b([^;}"',]*)`)
	transitionPropAll = regexp.MustCompile(`(?i)(transition-property\s*:\s*)all\b`)
	cssComment        = regexp.MustCompile(`(?s)/\*.*?\*/`)
	cssSpace          = regexp.MustCompile(`\s+`)
	cssPunct          = regexp.MustCompile(`\s*([{};,>])\s*`)
)

// narrowTransitions rewrites "transition: all 0.3s ease" into one entry per
// configured property, each keeping the original timing.
func (o *Optimizer) narrowTransitions(css string) string {
	props := strings.Split(o.transitionProps, ",")
	css = transitionAll.ReplaceAllStringFunc(css, func(m string) string {
		sub := transitionAll.FindStringSubmatch(m)
		timing := strings.TrimRight(sub[2], " \t\r\n")
		trailing := sub[2][len(timing):]
		entries := make([]string, 0, len(props))
		for _, p := range props {
			if p = strings.TrimSpace(p); p != "" {
				entries = append(entries, p+timing)
			}
		}
		return sub[1] + strings.Join(entries, ", ") + trailing
	})
	return transitionPropAll.ReplaceAllString(css, "${1}"+o.transitionProps)
}

// css narrows transitions and strips comments and redundant whitespace.
// Whitespace around ':' is kept so selectors such as "a :hover" survive.
func (o *Optimizer) css(src string) string {
	out := o.narrowTransitions(src)
	out = cssComment.ReplaceAllString(out, "")
	out = cssSpace.ReplaceAllString(out, " ")
	out = cssPunct.ReplaceAllString(out, "$1")
	return strings.TrimSpace(out)
}

// Equivalent reports whether two markup strings carry the same visible text.
func Equivalent(a, b string) bool {
	return visibleText(a) == visibleText(b)
}

// visibleText concatenates text as rendered: whitespace runs collapse to one
// space and block element boundaries separate words.
func visibleText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Style || a == atom.Script {
				switch {
				case tt == html.StartTagToken:
					skip++
				case tt == html.EndTagToken && skip > 0:
					skip--
				}
			}
			if !inlineElements[a] {
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.WriteString(html.UnescapeString(string(z.Text())))
			}
		}
	}
}
