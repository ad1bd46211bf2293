package common

import "fmt"

// ErrNotFound is the only error kind surfaced to clients. Everything below wraps it.
var ErrNotFound = fmt.Errorf("not found")

var (
	ErrBranchNameEmpty = fmt.Errorf("branch name cannot be empty: %w", ErrNotFound)
	ErrBranchNotFound  = fmt.Errorf("there is no such modpack: %w", ErrNotFound)
	ErrBranchNotReady  = fmt.Errorf("modpack is not done yet or it's empty: %w", ErrNotFound)
	ErrModNotJar       = fmt.Errorf("mod isn't a mod: %w", ErrNotFound)
	ErrModNotFound     = fmt.Errorf("there is no such mod in modpack: %w", ErrNotFound)
	ErrZipNotReady     = fmt.Errorf("there is no archive for modpack yet, try again later: %w", ErrNotFound)

	ErrCountersDisabled = fmt.Errorf("download counters are disabled")
)

var (
	ErrIndexingProcessHasAlreadyStarted = fmt.Errorf("indexing process has already started")
)
