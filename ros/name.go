package ros

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	Sep       = "/"
	GlobalNS  = "/"
	PrivateNS = "~"
	// Remap separates the two sides of a command line remapping.
	Remap = ":="
)

var (
	validName      = regexp.MustCompile(`^[~/]?([a-zA-Z]\w*/)*([a-zA-Z]\w*)?$`)
	validNamespace = regexp.MustCompile(`^/([a-zA-Z]\w*/)*$`)
)

type NameMap map[string]string

func getNamespace(name string) string {
	if len(name) == 0 {
		return GlobalNS
	} else if name[len(name)-1] == '/' {
		name = name[:len(name)-1]
	}
	result := name[:strings.LastIndex(name, Sep)+1]
	if len(result) == 0 {
		return Sep
	}
	return result
}

// qualifyNodeName splits a node name into its namespace and base name.
func qualifyNodeName(nodeName string) (string, string, error) {
	if nodeName == "" {
		return "", "", errors.New("empty node name")
	}
	if strings.HasPrefix(nodeName, PrivateNS) {
		return "", "", errors.Errorf("node name %q should not start with '~'", nodeName)
	}
	canonName := canonicalizeName(nodeName)
	if !isValidName(canonName) {
		return "", "", errors.Errorf("invalid node name %q", nodeName)
	}

	var components []string
	for _, c := range strings.Split(canonName, Sep) {
		if len(c) > 0 {
			components = append(components, c)
		}
	}
	if len(components) == 0 {
		return "", "", errors.Errorf("invalid node name %q", nodeName)
	}
	last := len(components) - 1
	if last == 0 {
		return GlobalNS, components[0], nil
	}
	return GlobalNS + strings.Join(components[:last], Sep) + Sep, components[last], nil
}

func resolveName(name string, namespace string, mappings NameMap) string {
	if len(name) == 0 {
		return getNamespace(namespace)
	}

	var resolvedName string
	canonName := canonicalizeName(name)
	if isGlobalName(canonName) {
		resolvedName = canonName
	} else if isPrivateName(canonName) {
		resolvedName = canonicalizeName(namespace + Sep + canonName[1:])
	} else {
		resolvedName = getNamespace(namespace) + canonName
	}

	if remappedName, ok := mappings[resolvedName]; ok {
		return remappedName
	}
	return resolvedName
}

func isValidName(name string) bool {
	return validName.MatchString(name)
}

func isValidNamespace(name string) bool {
	return validNamespace.MatchString(name)
}

func isGlobalName(name string) bool {
	return strings.HasPrefix(name, GlobalNS)
}

func isPrivateName(name string) bool {
	return strings.HasPrefix(name, PrivateNS)
}

// Remove sequential separators.
func canonicalizeName(name string) string {
	if name == GlobalNS || name == "" {
		return name
	}
	components := []string{}
	for _, word := range strings.Split(name, Sep) {
		if len(word) > 0 {
			components = append(components, word)
		}
	}
	if isGlobalName(name) {
		return GlobalNS + strings.Join(components, Sep)
	}
	return strings.Join(components, Sep)
}

// processArguments splits ROS command line arguments into remappings
// (from:=to), private params (_name:=value), special keys
// (__name:=value) and everything else.
func processArguments(args []string) (NameMap, NameMap, NameMap, []string) {
	mapping := make(NameMap)
	params := make(NameMap)
	specials := make(NameMap)
	rest := make([]string, 0)
	for _, arg := range args {
		components := strings.Split(arg, Remap)
		if len(components) != 2 {
			rest = append(rest, arg)
			continue
		}
		key, value := components[0], components[1]
		switch {
		case strings.HasPrefix(key, "__"):
			specials[key] = value
		case strings.HasPrefix(key, "_"):
			params[key[1:]] = value
		default:
			mapping[key] = value
		}
	}
	return mapping, params, specials, rest
}

// NameResolver resolves relative and private names against a node and
// applies command line remappings.
type NameResolver struct {
	nodeName        string
	namespace       string
	mapping         NameMap
	resolvedMapping NameMap
}

func newNameResolver(namespace string, nodeName string, remapping NameMap) *NameResolver {
	n := new(NameResolver)
	n.nodeName = nodeName
	n.namespace = canonicalizeName(namespace + Sep + nodeName)
	n.mapping = remapping
	n.resolvedMapping = make(NameMap)

	for k, v := range n.mapping {
		newKey := resolveName(k, n.namespace, nil)
		newValue := resolveName(v, n.namespace, nil)
		n.resolvedMapping[newKey] = newValue
	}
	return n
}

func (n *NameResolver) resolve(name string) string {
	return resolveName(name, n.namespace, nil)
}

func (n *NameResolver) remap(name string) string {
	return resolveName(name, n.namespace, n.resolvedMapping)
}
