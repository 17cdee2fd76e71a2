package render

import (
	"fmt"
	"strings"
)

// NodeKind identifies the node variants produced by Parse.
type NodeKind int

const (
	TextNode NodeKind = iota
	VarNode
	RawNode
	IfNode
	EachNode
)

func (k NodeKind) String() string {
	switch k {
	case TextNode:
		return "text"
	case VarNode:
		return "var"
	case RawNode:
		return "raw"
	case IfNode:
		return "if"
	case EachNode:
		return "each"
	default:
		return "unknown"
	}
}

// Node is one element of the intermediate node list. Text holds literal
// content for TextNode; Name holds the context key for every other kind.
// Body and Else are only used by block nodes.
type Node struct {
	Kind NodeKind
	Text string
	Name string
	Body []Node
	Else []Node
}

// ParseError reports a malformed template.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("render: parse error at offset %d: %s", e.Offset, e.Msg)
}

type tagKind int

const (
	tagVar tagKind = iota
	tagRaw
	tagOpenIf
	tagOpenEach
	tagElse
	tagCloseIf
	tagCloseEach
	tagComment
)

type token struct {
	text   bool
	kind   tagKind
	value  string
	offset int
}

// Parse turns template source into a node list. Placeholders are {{name}},
// raw placeholders {{{name}}}, blocks are {{#if name}}…{{else}}…{{/if}} and
// {{#each name}}…{{/each}}; {{! … }} is a comment.
func Parse(src string) ([]Node, error) {
	tokens, err := scan(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	nodes, closer, err := p.parseUntil()
	if err != nil {
		return nil, err
	}
	if closer != nil {
		return nil, &ParseError{Offset: closer.offset, Msg: "unexpected closing tag"}
	}
	return nodes, nil
}

func scan(src string) ([]token, error) {
	var tokens []token
	pos := 0
	for pos < len(src) {
		open := strings.Index(src[pos:], "{{")
		if open < 0 {
			tokens = append(tokens, token{text: true, value: src[pos:], offset: pos})
			break
		}
		open += pos
		if open > pos {
			tokens = append(tokens, token{text: true, value: src[pos:open], offset: pos})
		}
		if strings.HasPrefix(src[open:], "{{{") {
			end := strings.Index(src[open+3:], "}}}")
			if end < 0 {
				return nil, &ParseError{Offset: open, Msg: "unterminated raw placeholder"}
			}
			name := strings.TrimSpace(src[open+3 : open+3+end])
			if name == "" {
				return nil, &ParseError{Offset: open, Msg: "empty raw placeholder"}
			}
			tokens = append(tokens, token{kind: tagRaw, value: name, offset: open})
			pos = open + 3 + end + 3
			continue
		}
		end := strings.Index(src[open+2:], "}}")
		if end < 0 {
			return nil, &ParseError{Offset: open, Msg: "unterminated tag"}
		}
		body := strings.TrimSpace(src[open+2 : open+2+end])
		tok, err := classify(body, open)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		pos = open + 2 + end + 2
	}
	return tokens, nil
}

func classify(body string, offset int) (token, error) {
	switch {
	case body == "":
		return token{}, &ParseError{Offset: offset, Msg: "empty tag"}
	case strings.HasPrefix(body, "!"):
		return token{kind: tagComment, offset: offset}, nil
	case body == "else":
		return token{kind: tagElse, offset: offset}, nil
	case body == "/if":
		return token{kind: tagCloseIf, offset: offset}, nil
	case body == "/each":
		return token{kind: tagCloseEach, offset: offset}, nil
	case strings.HasPrefix(body, "#if"):
		return blockToken(tagOpenIf, strings.TrimPrefix(body, "#if"), offset)
	case strings.HasPrefix(body, "#each"):
		return blockToken(tagOpenEach, strings.TrimPrefix(body, "#each"), offset)
	case strings.HasPrefix(body, "#"), strings.HasPrefix(body, "/"):
		return token{}, &ParseError{Offset: offset, Msg: fmt.Sprintf("unsupported block %q", body)}
	default:
		return token{kind: tagVar, value: body, offset: offset}, nil
	}
}

func blockToken(kind tagKind, rest string, offset int) (token, error) {
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return token{}, &ParseError{Offset: offset, Msg: "malformed block tag"}
	}
	name := strings.TrimSpace(rest)
	if name == "" || strings.ContainsAny(name, " \t") {
		return token{}, &ParseError{Offset: offset, Msg: "block tag needs exactly one name"}
	}
	return token{kind: kind, value: name, offset: offset}, nil
}

type parser struct {
	tokens []token
	pos    int
}

// parseUntil consumes tokens until a closing or else tag and hands that tag
// back to the caller.
func (p *parser) parseUntil() ([]Node, *token, error) {
	var nodes []Node
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++
		if tok.text {
			nodes = append(nodes, Node{Kind: TextNode, Text: tok.value})
			continue
		}
		switch tok.kind {
		case tagComment:
		case tagVar:
			nodes = append(nodes, Node{Kind: VarNode, Name: tok.value})
		case tagRaw:
			nodes = append(nodes, Node{Kind: RawNode, Name: tok.value})
		case tagOpenIf:
			node, err := p.parseIf(tok)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, node)
		case tagOpenEach:
			node, err := p.parseEach(tok)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, node)
		default:
			t := tok
			return nodes, &t, nil
		}
	}
	return nodes, nil, nil
}

func (p *parser) parseIf(open token) (Node, error) {
	node := Node{Kind: IfNode, Name: open.value}
	body, closer, err := p.parseUntil()
	if err != nil {
		return Node{}, err
	}
	node.Body = body
	if closer != nil && closer.kind == tagElse {
		elseBody, elseCloser, err := p.parseUntil()
		if err != nil {
			return Node{}, err
		}
		node.Else = elseBody
		closer = elseCloser
		if closer != nil && closer.kind == tagElse {
			return Node{}, &ParseError{Offset: closer.offset, Msg: "duplicate else"}
		}
	}
	if closer == nil {
		return Node{}, &ParseError{Offset: open.offset, Msg: fmt.Sprintf("unclosed if %q", open.value)}
	}
	if closer.kind != tagCloseIf {
		return Node{}, &ParseError{Offset: closer.offset, Msg: "mismatched closing tag for if"}
	}
	return node, nil
}

func (p *parser) parseEach(open token) (Node, error) {
	body, closer, err := p.parseUntil()
	if err != nil {
		return Node{}, err
	}
	if closer == nil {
		return Node{}, &ParseError{Offset: open.offset, Msg: fmt.Sprintf("unclosed each %q", open.value)}
	}
	if closer.kind != tagCloseEach {
		return Node{}, &ParseError{Offset: closer.offset, Msg: "mismatched closing tag for each"}
	}
	return Node{Kind: EachNode, Name: open.value, Body: body}, nil
}

// References returns every context key used by the node list, including
// block keys, in first-seen order. Loop-local names are included as written.
func References(nodes []Node) []string {
	seen := map[string]struct{}{}
	var out []string
	var walk func([]Node)
	walk = func(list []Node) {
		for _, n := range list {
			if n.Kind != TextNode {
				if _, ok := seen[n.Name]; !ok {
					seen[n.Name] = struct{}{}
					out = append(out, n.Name)
				}
			}
			walk(n.Body)
			walk(n.Else)
		}
	}
	walk(nodes)
	return out
}
