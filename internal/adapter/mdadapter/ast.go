package mdadapter

import (
	"github.com/yuin/goldmark/ast"
)

var KindModDirective = ast.NewNodeKind("ModDirective")

// ModDirective is a {{ mod: name.jar }} link to a mod of the branch.
type ModDirective struct {
	ast.BaseInline
	Mod  string
	Href string
}

func (n *ModDirective) Kind() ast.NodeKind {
	return KindModDirective
}

func (n *ModDirective) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Mod":  n.Mod,
		"Href": n.Href,
	}, nil)
}
