package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Identity names the running instance and the link it reads.
type Identity struct {
	Session string `json:"session"`
	Backend string `json:"backend"`
	Source  string `json:"source"`
	Device  string `json:"device,omitempty"`
}

type AboutResponse struct {
	Identity
	Service   string `json:"service"`
	Protocol  string `json:"protocol"`
	NowUTC    string `json:"now_utc"`
	GoVersion string `json:"go_version"`
	Build     Build  `json:"build"`
}

// Build is the VCS stamp of the binary, when the toolchain recorded one.
type Build struct {
	Module   string `json:"module,omitempty"`
	Version  string `json:"version,omitempty"`
	Revision string `json:"revision,omitempty"`
	Modified bool   `json:"modified,omitempty"`
}

var buildStamp atomic.Pointer[Build]

func readBuild() Build {
	if b := buildStamp.Load(); b != nil {
		return *b
	}
	var b Build
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		b.Module, b.Version = bi.Main.Path, bi.Main.Version
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				b.Revision = s.Value
			case "vcs.modified":
				b.Modified = s.Value == "true"
			}
		}
	}
	buildStamp.Store(&b)
	return b
}

// SetIdentity records what /api/about reports about this instance.
func (s *Status) SetIdentity(id Identity) {
	s.id.Store(&id)
}

func (s *Status) identity() Identity {
	if id := s.id.Load(); id != nil {
		return *id
	}
	return Identity{}
}

func aboutHandler(status *Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, AboutResponse{
			Identity:  status.identity(),
			Service:   "navguard",
			Protocol:  "mip",
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion: runtime.Version(),
			Build:     readBuild(),
		})
	})
}
