package main

import (
	"os"
	"runtime/debug"

	"github.com/edwinhayes/rcprobe/internal/app"
)

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(unknown)"
	}
	var revision, modified string
	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			revision = kv.Value
		case "vcs.modified":
			modified = kv.Value
		}
	}
	if revision == "" {
		return info.Main.Version
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if modified == "true" {
		revision += " dirty"
	}
	return revision
}

func main() {
	os.Exit(app.Execute(version(), os.Args[1:], os.Stdout, os.Stderr))
}
