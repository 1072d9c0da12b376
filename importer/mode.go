package importer

import (
	"path"
	"strings"
)

// Mode is the import capability of a repository path.
type Mode int8

const (
	// SingleBranch rejects any push introducing a second branch ref
	// or a tag ref.
	SingleBranch Mode = iota
	// MultiBranchAndTag allows branches and tags without restriction.
	MultiBranchAndTag
)

func (m Mode) String() string {
	if m == MultiBranchAndTag {
		return "multi-branch"
	}
	return "single-branch"
}

// ModeFor decides the import mode for repoPath: membership in one of
// the configured multi-branch directory prefixes grants
// MultiBranchAndTag. It is a pure function of its inputs.
func ModeFor(multiBranchDirs []string, repoPath string) Mode {
	repo := path.Clean("/" + strings.ReplaceAll(repoPath, "\\", "/"))

	for _, dir := range multiBranchDirs {
		prefix := path.Clean("/" + dir)
		if repo == prefix || strings.HasPrefix(repo, prefix+"/") {
			return MultiBranchAndTag
		}
	}

	return SingleBranch
}

const (
	branchPrefix = "refs/heads/"
	tagPrefix    = "refs/tags/"
)

// ReferenceUpdate names a ref the push wants to create or move. The
// actual ref write is the gateway's concern; the importer only uses
// the names for policy checks.
type ReferenceUpdate struct {
	Name string
}

// IsBranch returns true for refs under refs/heads.
func (r ReferenceUpdate) IsBranch() bool {
	return strings.HasPrefix(r.Name, branchPrefix)
}

// IsTag returns true for refs under refs/tags.
func (r ReferenceUpdate) IsTag() bool {
	return strings.HasPrefix(r.Name, tagPrefix)
}

// Short returns the ref name without its refs/heads or refs/tags
// prefix.
func (r ReferenceUpdate) Short() string {
	if r.IsBranch() {
		return strings.TrimPrefix(r.Name, branchPrefix)
	}
	return strings.TrimPrefix(r.Name, tagPrefix)
}
