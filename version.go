package sitewise

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Version is the release tag. Release builds stamp it with
//
//	-ldflags "-X github.com/kadirpekel/sitewise.Version=v0.3.0"
//
// and unstamped builds fall back to the module version recorded by the Go
// toolchain, or "devel" for a plain checkout.
var Version string

const develVersion = "devel"

// Build describes the running binary.
type Build struct {
	Version   string    `json:"version"`
	Revision  string    `json:"revision,omitempty"`
	Time      time.Time `json:"time,omitzero"`
	Modified  bool      `json:"modified,omitempty"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
}

var current = sync.OnceValue(func() Build {
	bi, _ := debug.ReadBuildInfo()
	return buildFrom(Version, bi)
})

// Current returns the build description, read once from the binary.
func Current() Build {
	return current()
}

func buildFrom(stamped string, bi *debug.BuildInfo) Build {
	b := Build{
		Version:   stamped,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi != nil {
		if bi.GoVersion != "" {
			b.GoVersion = bi.GoVersion
		}
		if b.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			b.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				b.Revision = s.Value
			case "vcs.time":
				b.Time, _ = time.Parse(time.RFC3339, s.Value)
			case "vcs.modified":
				b.Modified = s.Value == "true"
			}
		}
	}
	if b.Version == "" {
		b.Version = develVersion
	}
	return b
}

// ShortRevision is the first twelve characters of the commit hash.
func (b Build) ShortRevision() string {
	if len(b.Revision) > 12 {
		return b.Revision[:12]
	}
	return b.Revision
}

// String renders the one-line form printed by "sitewise version".
func (b Build) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "sitewise %s", b.Version)
	if rev := b.ShortRevision(); rev != "" {
		sb.WriteString(" (" + rev)
		if b.Modified {
			sb.WriteString(", dirty")
		}
		sb.WriteString(")")
	}
	if !b.Time.IsZero() {
		sb.WriteString(" " + b.Time.UTC().Format(time.DateOnly))
	}
	fmt.Fprintf(&sb, " %s %s", b.GoVersion, b.Platform)
	return sb.String()
}
