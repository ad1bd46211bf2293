package page

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/jgivc/modserver/internal/adapter/mdadapter"
	"github.com/jgivc/modserver/internal/adapter/tpladapter"
)

const (
	serviceName = "page"

	pagePath = "/mods"
)

type BranchNamer interface {
	GetBranchNames() []string
}

type DescriptionReader interface {
	ReadDescription(branch string) ([]byte, error)
}

type MarkdownRenderer interface {
	Render(src []byte, linkBase string) (*mdadapter.Description, error)
}

type PageRenderer interface {
	Parse(page *tpladapter.PageContext) (string, error)
}

type pageService struct {
	prefix string
	names  BranchNamer
	descr  DescriptionReader
	md     MarkdownRenderer
	tpl    PageRenderer
	log    *slog.Logger
}

func NewPageService(prefix string, names BranchNamer, descr DescriptionReader, md MarkdownRenderer, tpl PageRenderer, log *slog.Logger) *pageService {
	return &pageService{
		prefix: prefix,
		names:  names,
		descr:  descr,
		md:     md,
		tpl:    tpl,
		log:    log.With(slog.String("service", serviceName)),
	}
}

// BranchHref is the download page of branch.
func (p *pageService) BranchHref(branch string) string {
	return path.Join("/", p.prefix, pagePath, branch)
}

// BranchList renders the html list of known branches.
func (p *pageService) BranchList() (string, error) {
	page := &tpladapter.PageContext{Prefix: p.prefix}

	for _, name := range p.names.GetBranchNames() {
		item := tpladapter.BranchItem{Name: name, Href: p.BranchHref(name)}
		p.describe(&item)

		page.Branches = append(page.Branches, item)
	}

	content, err := p.tpl.Parse(page)
	if err != nil {
		p.log.Error("Cannot build branch list", slog.Any("error", err))

		return "", fmt.Errorf("cannot build branch list: %w", err)
	}

	return content, nil
}

// describe fills title and description from the branch description file if there is one.
func (p *pageService) describe(item *tpladapter.BranchItem) {
	src, err := p.descr.ReadDescription(item.Name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.log.Warn("Cannot read description", slog.String("branch", item.Name), slog.Any("error", err))
		}

		return
	}

	desc, err := p.md.Render(src, item.Href)
	if err != nil {
		p.log.Warn("Cannot render description", slog.String("branch", item.Name), slog.Any("error", err))

		return
	}

	item.Title = desc.Title
	item.Description = desc.HTML
}
