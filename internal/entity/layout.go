package entity

import (
	"path"
	"strings"
)

// Branch directory layout.
const (
	DirBoth       = "both"
	DirClientOnly = "client_only"
	DirOptional   = "optional"
	DirServerOnly = "server_only"

	ModExt = ".jar"
)

// ModDirs lists the mod directories of a branch in scan order. Later entries win
// when the same file name shows up twice.
var ModDirs = []string{
	DirBoth,
	DirClientOnly,
	path.Join(DirBoth, DirOptional),
	path.Join(DirClientOnly, DirOptional),
}

func IsModName(name string) bool {
	return strings.HasSuffix(name, ModExt)
}

func IsProfileDir(name string) bool {
	return name == DirBoth || name == DirClientOnly
}
