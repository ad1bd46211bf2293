package entity

import (
	"encoding/json"
	"time"
)

// ModFile is one mod jar of a branch. Name is unique within the branch.
type ModFile struct {
	Name       string
	ModDate    time.Time // truncated to whole seconds, epoch 0 when unknown
	Size       int64
	IsOptional bool
}

// ModFiles maps a file name to its mod.
type ModFiles map[string]ModFile

// Equal reports whether both inventories hold the same names with the same size
// and modification date. IsOptional is not compared.
func (m ModFiles) Equal(other ModFiles) bool {
	if len(m) != len(other) {
		return false
	}

	for name, mod := range m {
		o, exists := other[name]
		if !exists || mod.Size != o.Size || !mod.ModDate.Equal(o.ModDate) {
			return false
		}
	}

	return true
}

// Names returns the set of file names.
func (m ModFiles) Names() map[string]struct{} {
	names := make(map[string]struct{}, len(m))
	for name := range m {
		names[name] = struct{}{}
	}

	return names
}

func (m ModFiles) Slice() []ModFile {
	mods := make([]ModFile, 0, len(m))
	for _, mod := range m {
		mods = append(mods, mod)
	}

	return mods
}

// ModDate truncates t to whole seconds, which is what a zip entry can hold.
// An unknown time becomes the Unix epoch.
func ModDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}

	return t.Truncate(time.Second)
}

// ZipData describes the cached client archive of a branch.
type ZipData struct {
	Size      int64
	IsPresent bool
	ModDate   time.Time
}

// BranchData is the published snapshot of one branch.
type BranchData struct {
	Zip  ZipData   `json:"zip"`
	Mods []ModFile `json:"mods"`
}

// Dates go out as Unix milliseconds, which is what existing clients parse.

func (m ModFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string `json:"name"`
		ModDate    int64  `json:"mod_date"`
		Size       int64  `json:"size"`
		IsOptional bool   `json:"is_optional"`
	}{
		Name:       m.Name,
		ModDate:    m.ModDate.UnixMilli(),
		Size:       m.Size,
		IsOptional: m.IsOptional,
	})
}

func (z ZipData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Size      int64 `json:"size"`
		IsPresent bool  `json:"is_present"`
		ModDate   int64 `json:"mod_date"`
	}{
		Size:      z.Size,
		IsPresent: z.IsPresent,
		ModDate:   z.ModDate.UnixMilli(),
	})
}
