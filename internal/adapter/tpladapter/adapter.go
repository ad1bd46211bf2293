package tpladapter

import (
	"bytes"
	"fmt"
	"html/template"

	_ "embed"

	"github.com/spf13/afero"
)

//go:embed template.html
var defaultTemplate string

// BranchItem is one entry of the branch list page.
type BranchItem struct {
	Name        string
	Href        string
	Title       string
	Description template.HTML
}

type PageContext struct {
	Prefix   string
	Branches []BranchItem
}

type tplAdapter struct {
	tpl *template.Template
}

// NewTplAdapter parses templateFileName from fs, or the built-in page when the name is empty.
func NewTplAdapter(fs afero.Fs, templateFileName string) (*tplAdapter, error) {
	src := defaultTemplate
	if templateFileName != "" {
		data, err := afero.ReadFile(fs, templateFileName)
		if err != nil {
			return nil, fmt.Errorf("cannot read template: %w", err)
		}

		src = string(data)
	}

	tpl, err := template.New("page").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("cannot parse template: %w", err)
	}

	return &tplAdapter{tpl: tpl}, nil
}

func (a *tplAdapter) Parse(page *PageContext) (string, error) {
	buf := bytes.Buffer{}
	if err := a.tpl.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("cannot execute template: %w", err)
	}

	return buf.String(), nil
}
