package cli

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd_Use(t *testing.T) {
	assert.Equal(t, "version", versionCmd.Use)
	assert.Equal(t, "Print the version number", versionCmd.Short)
}

func TestVersionCmd_Executes(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{name: "dev build", version: "dev", want: "ruleforge version dev\n"},
		{name: "release", version: "1.2.0", want: "ruleforge version 1.2.0\n"},
		{name: "with commit", version: "1.2.0", commit: "abc1234", want: "ruleforge version 1.2.0 (abc1234)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			originalVersion, originalCommit := version, commit
			SetVersion(tt.version, tt.commit)
			defer SetVersion(originalVersion, originalCommit)

			out, err := execute(t, "version")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestVersionCmd_VerboseShowsRuntime(t *testing.T) {
	out, err := execute(t, "version", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, runtime.Version())
}
