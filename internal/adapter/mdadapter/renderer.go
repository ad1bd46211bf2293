package mdadapter

import (
	"html"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

type modDirectiveRenderer struct{}

func NewModDirectiveRenderer() renderer.NodeRenderer {
	return &modDirectiveRenderer{}
}

func (r *modDirectiveRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindModDirective, r.renderModDirective)
}

func (r *modDirectiveRenderer) renderModDirective(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	directive := n.(*ModDirective)

	_, _ = w.WriteString(`<a class="mod" href="`)
	_, _ = w.WriteString(html.EscapeString(directive.Href))
	_, _ = w.WriteString(`">`)
	_, _ = w.WriteString(html.EscapeString(directive.Mod))
	_, _ = w.WriteString(`</a>`)

	return ast.WalkContinue, nil
}
