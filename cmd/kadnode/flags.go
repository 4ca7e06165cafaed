package main

import "flag"

// flagSet wraps flag.FlagSet so main always gets ContinueOnError behavior,
// matching the teacher's own CLI convention.
type flagSet struct {
	*flag.FlagSet
}

// newCustomFlagSet creates a flagSet with ContinueOnError behavior.
func newCustomFlagSet(name string) *flagSet {
	return &flagSet{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
}
