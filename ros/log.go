package ros

import (
	"sort"
	"strings"
	"sync"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/sirupsen/logrus"
)

// DefaultLogger returns the process wide logger shared by nodes that
// are not given one.
func DefaultLogger() *logrus.Logger {
	return logrus.StandardLogger()
}

// NewLogger returns a new instance of a logger
func NewLogger() *logrus.Logger {
	return logrus.New()
}

// ParseLevel parses a log level name, falling back to warning for
// anything logrus does not know.
func ParseLevel(name string) (logrus.Level, bool) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return logrus.WarnLevel, false
	}
	return level, true
}

var (
	rootsMutex sync.Mutex
	roots      = make(map[*logrus.Logger]modular.RootLogger)
)

// RootLogger returns the module tree logging through logger. Wrapping
// moves the logger's level onto the root module, so every caller
// sharing a logger gets the same tree.
func RootLogger(logger *logrus.Logger) modular.RootLogger {
	if logger == nil {
		logger = DefaultLogger()
	}
	rootsMutex.Lock()
	defer rootsMutex.Unlock()
	root, ok := roots[logger]
	if !ok {
		root = modular.NewRootLogger(logger)
		roots[logger] = root
	}
	return root
}

// Submodule returns the named child of log's module. A missing child
// starts at its parent's level.
func Submodule(log modular.Logger, name string) modular.ModuleLogger {
	m := log.GetModuleLogger()
	for _, part := range strings.Split(name, ".") {
		m = m.GetOrCreateChild(part, m.GetLevel())
	}
	return m
}

// SetLogLevels applies a comma separated list such as
// "info,ros=debug,scenario.launch=trace". A bare level applies to the
// root and every module below it, module=level entries then override
// single modules and their children. Entries whose level does not
// parse are applied as warning and returned.
func SetLogLevels(root modular.RootLogger, spec string) []string {
	type override struct {
		module string
		level  logrus.Level
	}
	var (
		bare      []logrus.Level
		overrides []override
		unknown   []string
	)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		module, name := "", entry
		if i := strings.IndexByte(entry, '='); i >= 0 {
			module, name = strings.TrimSpace(entry[:i]), entry[i+1:]
		}
		level, ok := ParseLevel(name)
		if !ok {
			unknown = append(unknown, entry)
		}
		if module == "" {
			bare = append(bare, level)
		} else {
			overrides = append(overrides, override{module, level})
		}
	}

	// Parents first, SetLevel propagates to children.
	sort.SliceStable(overrides, func(i, j int) bool {
		return strings.Count(overrides[i].module, ".") < strings.Count(overrides[j].module, ".")
	})

	finest := logrus.DebugLevel
	for _, level := range bare {
		root.SetLevel(level)
		if level > finest {
			finest = level
		}
	}
	for _, o := range overrides {
		Submodule(root, o.module).SetLevel(o.level)
		if o.level > finest {
			finest = o.level
		}
	}
	// Modules filter by level themselves, the wrapped logger only has to
	// let the most verbose one through.
	root.GetLogger().SetLevel(finest)
	return unknown
}
