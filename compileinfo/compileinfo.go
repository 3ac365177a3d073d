// Package compileinfo reports which revision a wext binary was built from,
// so that weight matrices and result tables can be traced back to code.
package compileinfo

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

type CompileInfo struct {
	Package    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool
}

func (c CompileInfo) String() string {
	mod := ""
	if c.Modified {
		mod = " (modified)"
	}

	return fmt.Sprintf("%s %s@%s %s%s", c.Package, c.GoVersion, c.Commit, c.CommitTime, mod)
}

// Get reads the build settings embedded by the Go toolchain. Fields are
// empty when the binary carries no VCS information, as under go test.
func Get() CompileInfo {
	out := CompileInfo{}

	z, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	out.GoVersion = z.GoVersion
	out.Package = z.Path
	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}

// Log emits the build information as one structured info event.
func (c CompileInfo) Log(log *zerolog.Logger) {
	log.Info().
		Str("package", c.Package).
		Str("go", c.GoVersion).
		Str("commit", c.Commit).
		Str("commit_time", c.CommitTime).
		Bool("modified", c.Modified).
		Msg("Build")
}

// Params is the build information in the form echoed into output metadata.
func (c CompileInfo) Params() map[string]interface{} {
	return map[string]interface{}{
		"commit":   c.Commit,
		"go":       c.GoVersion,
		"modified": c.Modified,
	}
}
