package fsadapter

import (
	"fmt"
	"path/filepath"

	"github.com/jgivc/modserver/internal/common"
	"github.com/jgivc/modserver/internal/entity"
)

// ModPath finds mod in one of the mod directories of branch and returns its path
// relative to the branches root.
func (a *fsAdapter) ModPath(branch, mod string) (string, error) {
	if branch == "" {
		return "", common.ErrBranchNameEmpty
	}

	if !entity.IsModName(mod) || !validName(mod) {
		return "", fmt.Errorf("'%s': %w", mod, common.ErrModNotJar)
	}

	if !a.BranchExists(branch) {
		return "", fmt.Errorf("'%s': %w", branch, common.ErrBranchNotFound)
	}

	for _, dir := range []string{
		entity.DirBoth,
		filepath.Join(entity.DirBoth, entity.DirOptional),
		entity.DirClientOnly,
		filepath.Join(entity.DirClientOnly, entity.DirOptional),
	} {
		modPath := filepath.Join(branch, dir, mod)
		if a.fileExists(filepath.Join(a.cfg.BranchesDir, modPath)) {
			return modPath, nil
		}
	}

	return "", fmt.Errorf("'%s' in '%s': %w", mod, branch, common.ErrModNotFound)
}

// ZipPath returns the archive path of branch relative to the branches root.
func (a *fsAdapter) ZipPath(branch string) (string, error) {
	if branch == "" {
		return "", common.ErrBranchNameEmpty
	}

	if !a.BranchExists(branch) {
		return "", fmt.Errorf("'%s': %w", branch, common.ErrBranchNotFound)
	}

	zipPath := filepath.Join(branch, a.cfg.ArchiveName)
	if a.fileExists(filepath.Join(a.cfg.BranchesDir, zipPath)) {
		return zipPath, nil
	}

	return "", fmt.Errorf("'%s': %w", branch, common.ErrZipNotReady)
}
