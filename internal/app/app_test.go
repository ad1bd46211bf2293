package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestStartInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	a := New(writeConfig(t, dir, "log_level: loud\n"))
	require.Error(t, a.Start())
	a.Stop()
}

func TestStartServesBranches(t *testing.T) {
	dir := t.TempDir()
	branches := filepath.Join(dir, "branches")

	jar := filepath.Join(branches, "main", "both", "a.jar")
	require.NoError(t, os.MkdirAll(filepath.Dir(jar), 0o755))
	require.NoError(t, os.WriteFile(jar, []byte("jar"), 0o644))

	a := New(writeConfig(t, dir, `
listen: "127.0.0.1:0"
log_level: error
static_dir: `+filepath.Join(dir, "static")+`
sync:
  branches_dir: `+branches+`
`))
	require.NoError(t, a.Start())
	defer a.Stop()

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

		return rec
	}

	rec := get("/minecraft/api/mods")
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"main"}, names)

	rec = get("/api/minecraft/mods/main")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"a.jar"}, names)

	rec = get("/minecraft/mods/main")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment;filename=main.zip", rec.Header().Get("Content-Disposition"))

	assert.Equal(t, http.StatusNotFound, get("/minecraft/mods/ghost").Code)
}
