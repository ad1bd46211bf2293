package mdadapter

import (
	"path"
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// LinkBaseKey holds the url prefix the mod links are built from.
var LinkBaseKey = parser.NewContextKey()

var modDirectiveRe = regexp.MustCompile(`^\{\{\s*mod:\s*([^\s}]+)\s*\}\}`)

type modDirectiveParser struct{}

func NewModDirectiveParser() parser.InlineParser {
	return &modDirectiveParser{}
}

func (s *modDirectiveParser) Trigger() []byte {
	return []byte{'{'}
}

func (s *modDirectiveParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()

	matches := modDirectiveRe.FindSubmatch(line)
	if matches == nil {
		return nil
	}

	block.Advance(len(matches[0]))

	mod := string(matches[1])
	base, _ := pc.Get(LinkBaseKey).(string)

	return &ModDirective{
		Mod:  mod,
		Href: path.Join(base, mod),
	}
}
