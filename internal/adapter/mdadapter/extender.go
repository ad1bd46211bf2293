package mdadapter

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/frontmatter"
)

type ModsExtension struct{}

func NewModsExtension() goldmark.Extender {
	return &ModsExtension{}
}

func (e *ModsExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithInlineParsers(
			util.Prioritized(NewModDirectiveParser(), 500),
		),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(NewModDirectiveRenderer(), 500),
		),
	)
}

type Frontmatter struct {
	Title string `yaml:"title"`
}

// Description is a rendered description.md of a branch.
type Description struct {
	Title string
	HTML  template.HTML
}

type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				&frontmatter.Extender{},
				NewModsExtension(),
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
	}
}

// Render converts markdown to html. Mod links are built as linkBase/<mod>.
func (r *Renderer) Render(src []byte, linkBase string) (*Description, error) {
	pc := parser.NewContext()
	pc.Set(LinkBaseKey, linkBase)

	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf, parser.WithContext(pc)); err != nil {
		return nil, fmt.Errorf("cannot convert markdown: %w", err)
	}

	desc := &Description{HTML: template.HTML(buf.String())}

	if data := frontmatter.Get(pc); data != nil {
		var fm Frontmatter
		if err := data.Decode(&fm); err != nil {
			return nil, fmt.Errorf("cannot decode frontmatter: %w", err)
		}

		desc.Title = fm.Title
	}

	return desc, nil
}
