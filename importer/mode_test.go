package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeFor(t *testing.T) {
	t.Parallel()

	multiBranchDirs := []string{"third-party", "projects/shared"}

	tests := []struct {
		name     string
		repoPath string
		want     Mode
	}{
		{name: "plain repo", repoPath: "alice/app", want: SingleBranch},
		{name: "under multi-branch dir", repoPath: "third-party/linux", want: MultiBranchAndTag},
		{name: "nested under multi-branch dir", repoPath: "projects/shared/deep/repo", want: MultiBranchAndTag},
		{name: "dir itself", repoPath: "third-party", want: MultiBranchAndTag},
		{name: "prefix but not a member", repoPath: "third-party-forks/repo", want: SingleBranch},
		{name: "leading slash", repoPath: "/third-party/linux", want: MultiBranchAndTag},
		{name: "backslash separators", repoPath: "third-party\\linux", want: MultiBranchAndTag},
		{name: "empty path", repoPath: "", want: SingleBranch},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ModeFor(multiBranchDirs, tc.repoPath))
		})
	}
}

func TestModeForNoDirs(t *testing.T) {
	assert.Equal(t, SingleBranch, ModeFor(nil, "any/repo"))
}

func TestReferenceUpdate(t *testing.T) {
	t.Parallel()

	branch := ReferenceUpdate{Name: "refs/heads/main"}
	assert.True(t, branch.IsBranch())
	assert.False(t, branch.IsTag())
	assert.Equal(t, "main", branch.Short())

	tag := ReferenceUpdate{Name: "refs/tags/v1.0.0"}
	assert.True(t, tag.IsTag())
	assert.False(t, tag.IsBranch())
	assert.Equal(t, "v1.0.0", tag.Short())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "single-branch", SingleBranch.String())
	assert.Equal(t, "multi-branch", MultiBranchAndTag.String())
}
