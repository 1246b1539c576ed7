// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package plugin is a static registry for line-preprocessor plugins.
// Plugins register themselves in an init() function and the core
// looks them up by name. No dynamic code loading is required because
// plugins are statically compiled in -- add one by blank-importing
// its package from a binary's main.
package plugin

import "fmt"

// RunFunc is the uniform plugin entry point: given an output folder
// and the hyperspectral input file, it produces a derived file and
// returns its path.
type RunFunc func(outputFolder, hsiFilename string) (string, error)

var registry = map[string]RunFunc{}

// Register adds a plugin under name. Calling Register twice with the
// same name is a programmer error and panics rather than silently
// shadowing the first registration.
func Register(name string, fn RunFunc) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("plugin: %q already registered", name))
	}
	registry[name] = fn
}

// Lookup returns the plugin registered under name, if any.
func Lookup(name string) (RunFunc, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Names returns every currently registered plugin name.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
