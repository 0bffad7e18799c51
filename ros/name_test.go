package ros

import (
	"reflect"
	"testing"
)

func TestListenerArguments(t *testing.T) {
	mapping, params, specials, rest := processArguments([]string{
		"_topic:=fmu/rc",
		"__ns:=/sitl",
		"__name:=rc_check",
		"ap/rc:=/fmu/rc",
		"--verbose",
		"bad:=remap:=twice",
	})
	if want := (NameMap{"ap/rc": "/fmu/rc"}); !reflect.DeepEqual(mapping, want) {
		t.Errorf("mapping %v, want %v", mapping, want)
	}
	if want := (NameMap{"topic": "fmu/rc"}); !reflect.DeepEqual(params, want) {
		t.Errorf("params %v, want %v", params, want)
	}
	if want := (NameMap{"__ns": "/sitl", "__name": "rc_check"}); !reflect.DeepEqual(specials, want) {
		t.Errorf("specials %v, want %v", specials, want)
	}
	if want := []string{"--verbose", "bad:=remap:=twice"}; !reflect.DeepEqual(rest, want) {
		t.Errorf("rest %v, want %v", rest, want)
	}
}

func TestListenerNodeNames(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		base      string
	}{
		{"rc_listener", "/", "rc_listener"},
		{"/rc_listener", "/", "rc_listener"},
		{"rc_listener_0a1b2c3d4e5f", "/", "rc_listener_0a1b2c3d4e5f"},
		{"/sitl/rc_listener", "/sitl/", "rc_listener"},
		{"sitl//copter/rc_listener/", "/sitl/copter/", "rc_listener"},
	}
	for _, tt := range tests {
		ns, base, err := qualifyNodeName(tt.name)
		if err != nil {
			t.Errorf("%q: %v", tt.name, err)
			continue
		}
		if ns != tt.namespace || base != tt.base {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tt.name, ns, base, tt.namespace, tt.base)
		}
	}

	for _, name := range []string{"", "/", "~rc_listener", "rc listener", "0rc", "rc/_listener"} {
		if _, _, err := qualifyNodeName(name); err == nil {
			t.Errorf("%q: expected an error", name)
		}
	}
}

func TestTopicNameValidation(t *testing.T) {
	for _, name := range []string{"ap/rc", "/ap/rc", "~topic", "fmu/rc/", "ap/rc_0"} {
		if !isValidName(name) {
			t.Errorf("%q should be valid", name)
		}
	}
	for _, name := range []string{"ap//rc", "ap/rc ", "ap/0rc", "ap/~rc", "/ap/rc?"} {
		if isValidName(name) {
			t.Errorf("%q should be invalid", name)
		}
	}
	if got := canonicalizeName("//ap///rc/"); got != "/ap/rc" {
		t.Errorf("canonicalizeName = %q", got)
	}
}

func TestRcTopicResolution(t *testing.T) {
	tests := []struct {
		desc      string
		namespace string
		node      string
		args      []string
		name      string
		want      string
	}{
		{"relative topic", "/", "rc_listener", nil, "ap/rc", "/ap/rc"},
		{"global topic", "/", "rc_listener", nil, "/ap/rc", "/ap/rc"},
		{"private param", "/", "rc_listener", nil, "~topic", "/rc_listener/topic"},
		{"node namespace", "/sitl/", "rc_listener", nil, "ap/rc", "/sitl/ap/rc"},
		{"global ignores namespace", "/sitl/", "rc_listener", nil, "/ap/rc", "/ap/rc"},
		{"private under namespace", "/sitl/", "rc_listener", nil, "~topic", "/sitl/rc_listener/topic"},
		{"relative remap", "/", "rc_listener", []string{"ap/rc:=fmu/rc"}, "ap/rc", "/fmu/rc"},
		{"remap in namespace", "/sitl/", "rc_listener", []string{"ap/rc:=fmu/rc"}, "ap/rc", "/sitl/fmu/rc"},
		{"global remap", "/sitl/", "rc_listener", []string{"/sitl/ap/rc:=/ap/rc"}, "ap/rc", "/ap/rc"},
		{"private remap", "/", "rc_listener", []string{"~rc:=/ap/rc"}, "~rc", "/ap/rc"},
		{"unrelated remap", "/", "rc_listener", []string{"ap/battery:=fmu/battery"}, "ap/rc", "/ap/rc"},
		{"empty name", "/sitl/", "rc_listener", nil, "", "/sitl/"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			mapping, _, _, _ := processArguments(tt.args)
			r := newNameResolver(tt.namespace, tt.node, mapping)
			if got := r.remap(tt.name); got != tt.want {
				t.Errorf("remap(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestTopicParamResolution(t *testing.T) {
	mapping, _, _, _ := processArguments([]string{"~topic:=/other"})
	r := newNameResolver("/", "rc_listener", mapping)
	if got := r.resolve(PrivateNS + "topic"); got != "/rc_listener/topic" {
		t.Errorf("resolve = %q", got)
	}
	if got := r.remap(PrivateNS + "topic"); got != "/other" {
		t.Errorf("remap = %q", got)
	}
}

func TestNamespaceOfTopics(t *testing.T) {
	tests := map[string]string{
		"":                   "/",
		"/":                  "/",
		"/ap/rc":             "/ap/",
		"/ap/rc/":            "/ap/",
		"/sitl/rc_listener":  "/sitl/",
		"/rc_listener":       "/",
		"/sitl/copter/ap/rc": "/sitl/copter/ap/",
	}
	for name, want := range tests {
		if got := getNamespace(name); got != want {
			t.Errorf("getNamespace(%q) = %q, want %q", name, got, want)
		}
	}
}
