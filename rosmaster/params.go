package rosmaster

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// paramStore is a flat map of fully qualified names. Namespaces are
// implied by "/" separated prefixes and materialize as nested maps on
// read.
type paramStore struct {
	values map[string]interface{}
}

func newParamStore() *paramStore {
	return &paramStore{values: make(map[string]interface{})}
}

// resolveKey qualifies key relative to the namespace of callerID.
func resolveKey(callerID string, key string) string {
	switch {
	case key == "":
		return "/"
	case strings.HasPrefix(key, "/"):
		return canonicalize(key)
	case strings.HasPrefix(key, "~"):
		return canonicalize(callerID + "/" + key[1:])
	}
	return canonicalize(namespaceOf(callerID) + "/" + key)
}

func canonicalize(name string) string {
	parts := strings.Split(name, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return "/" + strings.Join(kept, "/")
}

func namespaceOf(name string) string {
	name = canonicalize(name)
	if i := strings.LastIndex(name, "/"); i > 0 {
		return name[:i]
	}
	return "/"
}

func subtreePrefix(key string) string {
	if key == "/" {
		return "/"
	}
	return key + "/"
}

func (s *paramStore) has(key string) bool {
	if _, ok := s.values[key]; ok {
		return true
	}
	prefix := subtreePrefix(key)
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

func (s *paramStore) get(key string) (interface{}, error) {
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	prefix := subtreePrefix(key)
	tree := map[string]interface{}{}
	found := false
	for k, v := range s.values {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		found = true
		insertPath(tree, strings.Split(strings.TrimPrefix(k, prefix), "/"), v)
	}
	if !found {
		return nil, errors.Errorf("parameter [%s] is not set", key)
	}
	return tree, nil
}

func insertPath(tree map[string]interface{}, path []string, v interface{}) {
	if len(path) == 1 {
		tree[path[0]] = v
		return
	}
	child, ok := tree[path[0]].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		tree[path[0]] = child
	}
	insertPath(child, path[1:], v)
}

// set replaces key and everything below it. A map value is stored as a
// namespace of its entries.
func (s *paramStore) set(key string, v interface{}) {
	s.delete(key)
	s.setValue(key, v)
}

func (s *paramStore) setValue(key string, v interface{}) {
	m, ok := v.(map[string]interface{})
	if !ok {
		s.values[key] = v
		return
	}
	for k, child := range m {
		s.setValue(canonicalize(key+"/"+k), child)
	}
}

func (s *paramStore) delete(key string) bool {
	deleted := false
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		deleted = true
	}
	prefix := subtreePrefix(key)
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			delete(s.values, k)
			deleted = true
		}
	}
	return deleted
}

// search looks for key from the namespace of callerID upwards and
// returns the first qualified name that exists.
func (s *paramStore) search(callerID string, key string) (string, bool) {
	if strings.HasPrefix(key, "/") {
		key = canonicalize(key)
		return key, s.has(key)
	}
	key = strings.TrimPrefix(key, "~")
	head := strings.SplitN(key, "/", 2)[0]
	ns := namespaceOf(callerID)
	for {
		if s.has(canonicalize(ns + "/" + head)) {
			return canonicalize(ns + "/" + key), true
		}
		if ns == "/" {
			return "", false
		}
		ns = namespaceOf(ns)
	}
}

func (s *paramStore) names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
