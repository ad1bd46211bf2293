package tpladapter

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplate(t *testing.T) {
	a, err := NewTplAdapter(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	out, err := a.Parse(&PageContext{
		Prefix: "/minecraft",
		Branches: []BranchItem{
			{Name: "main", Href: "/minecraft/mods/main"},
			{Name: "dev", Href: "/minecraft/mods/dev", Title: "Dev <pack>", Description: "<p>fresh</p>"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, out, `<a href="/minecraft/mods/main">main</a>`)
	assert.Contains(t, out, "Dev &lt;pack&gt;")
	assert.Contains(t, out, "<p>fresh</p>")
	assert.Contains(t, out, `/minecraft/static/favicon.ico`)
	assert.NotContains(t, out, "No mods here!")
}

func TestEmptyList(t *testing.T) {
	a, err := NewTplAdapter(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	out, err := a.Parse(&PageContext{Prefix: "/minecraft"})
	require.NoError(t, err)
	assert.Contains(t, out, "No mods here!")
}

func TestCustomTemplate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/page.html", []byte(`{{range .Branches}}[{{.Name}}]{{end}}`), 0o644))

	a, err := NewTplAdapter(fs, "/page.html")
	require.NoError(t, err)

	out, err := a.Parse(&PageContext{Branches: []BranchItem{{Name: "a"}, {Name: "b"}}})
	require.NoError(t, err)
	assert.Equal(t, "[a][b]", out)

	_, err = NewTplAdapter(fs, "/missing.html")
	require.Error(t, err)
}
