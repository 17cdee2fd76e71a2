package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Context is the flat token mapping a template is rendered against. Values
// are strings, numbers, booleans, slices or maps decoded from JSON.
type Context map[string]any

// Clone returns a shallow copy of the context.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Mode selects how substituted values are escaped.
type Mode int

const (
	ModeHTML Mode = iota
	ModeCSS
)

var (
	htmlBraces = strings.NewReplacer("{", "&#123;", "}", "&#125;")
	cssUnsafe  = strings.NewReplacer("{", "", "}", "", "<", "", ">", "", ";", "")
)

func (m Mode) escape(s string) string {
	if m == ModeCSS {
		return cssUnsafe.Replace(s)
	}
	return htmlBraces.Replace(html.EscapeString(s))
}

func (m Mode) raw(s string) string {
	if m == ModeCSS {
		return cssUnsafe.Replace(s)
	}
	return htmlBraces.Replace(s)
}

// seal guarantees no placeholder opener survives in the output, even when
// literal braces and substituted values happen to line up.
func (m Mode) seal(s string) string {
	for strings.Contains(s, "{{") {
		if m == ModeCSS {
			s = strings.ReplaceAll(s, "{{", "{ {")
		} else {
			s = strings.ReplaceAll(s, "{{", "&#123;&#123;")
		}
	}
	return s
}

type frame struct {
	values map[string]any
	item   any
	index  int
	loop   bool
}

// Execute walks the node list against ctx. It never fails: missing keys
// render as empty strings, falsy conditions render their else branch and
// non-array loop targets render nothing.
func Execute(nodes []Node, ctx Context, mode Mode) string {
	var b strings.Builder
	frames := []frame{{values: ctx}}
	execNodes(&b, nodes, frames, mode)
	return mode.seal(b.String())
}

func execNodes(b *strings.Builder, nodes []Node, frames []frame, mode Mode) {
	for _, n := range nodes {
		switch n.Kind {
		case TextNode:
			b.WriteString(n.Text)
		case VarNode:
			b.WriteString(mode.escape(Stringify(lookup(frames, n.Name))))
		case RawNode:
			b.WriteString(mode.raw(Stringify(lookup(frames, n.Name))))
		case IfNode:
			if Truthy(lookup(frames, n.Name)) {
				execNodes(b, n.Body, frames, mode)
			} else {
				execNodes(b, n.Else, frames, mode)
			}
		case EachNode:
			items, ok := toSlice(lookup(frames, n.Name))
			if !ok {
				continue
			}
			for i, item := range items {
				f := frame{item: item, index: i, loop: true}
				if m, ok := item.(map[string]any); ok {
					f.values = m
				}
				execNodes(b, n.Body, append(frames, f), mode)
			}
		}
	}
}

func lookup(frames []frame, name string) any {
	parts := strings.Split(name, ".")
	head, rest := parts[0], parts[1:]
	var v any
	switch head {
	case "this":
		f, ok := nearestLoop(frames)
		if !ok {
			return nil
		}
		v = f.item
	case "@index":
		f, ok := nearestLoop(frames)
		if !ok {
			return nil
		}
		return f.index
	case "@number":
		f, ok := nearestLoop(frames)
		if !ok {
			return nil
		}
		return f.index + 1
	default:
		found := false
		for i := len(frames) - 1; i >= 0; i-- {
			if frames[i].values == nil {
				continue
			}
			if val, ok := frames[i].values[head]; ok {
				v, found = val, true
				break
			}
		}
		if !found {
			return nil
		}
	}
	for _, seg := range rest {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[seg]
	}
	return v
}

func nearestLoop(frames []frame) (frame, bool) {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].loop {
			return frames[i], true
		}
	}
	return frame{}, false
}

// Truthy implements the conditional rules: non-empty strings, non-zero
// numbers, true and non-empty collections are truthy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case []map[string]any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// Stringify returns the textual form of a context value.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any, []map[string]any:
		return ""
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}
