package render

import (
	"fmt"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

// Compiled is a parsed template ready for repeated execution.
type Compiled struct {
	Template domain.Template
	markup   []Node
	style    []Node
}

// Compile parses both the markup and style sections of tpl.
func Compile(tpl domain.Template) (*Compiled, error) {
	markup, err := Parse(tpl.Markup)
	if err != nil {
		return nil, fmt.Errorf("render: template %s markup: %w", tpl.ID, err)
	}
	style, err := Parse(tpl.Style)
	if err != nil {
		return nil, fmt.Errorf("render: template %s style: %w", tpl.ID, err)
	}
	return &Compiled{Template: tpl, markup: markup, style: style}, nil
}

// References lists the context keys the markup and style depend on.
func (c *Compiled) References() []string {
	combined := make([]Node, 0, len(c.markup)+len(c.style))
	combined = append(combined, c.markup...)
	combined = append(combined, c.style...)
	return References(combined)
}

// Execute renders the compiled template for its own format. Width, height and
// format come from the dimension table and override anything in ctx.
func (c *Compiled) Execute(ctx Context) (string, string, error) {
	spec, ok := c.Template.Format.Spec()
	if !ok {
		return "", "", fmt.Errorf("render: template %s has unknown format %q", c.Template.ID, c.Template.Format)
	}
	scope := ctx.Clone()
	scope["width"] = spec.Width
	scope["height"] = spec.Height
	scope["format"] = string(spec.Format)
	return Execute(c.markup, scope, ModeHTML), Execute(c.style, scope, ModeCSS), nil
}

// Render compiles and executes tpl in one step.
func Render(tpl domain.Template, ctx Context) (string, string, error) {
	c, err := Compile(tpl)
	if err != nil {
		return "", "", err
	}
	return c.Execute(ctx)
}
