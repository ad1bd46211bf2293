package entity

// BranchCounters holds download counters of one branch, keyed by file name.
type BranchCounters struct {
	Branch string        `yaml:"branch"`
	Files  []FileCounter `yaml:"files"`
}

type FileCounter struct {
	Name    string `yaml:"name"`
	Counter int64  `yaml:"counter"`
}

// Download is a resolved file a client asked for.
type Download struct {
	Branch   string
	FileName string // name offered to the client
	RelPath  string // path relative to the branches root
}
