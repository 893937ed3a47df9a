package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"
)

// Panic if the given error is not nil.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

// getNullString returns the value of a string flag, valid only if the user
// set it. Flags the command doesn't define are invalid.
func getNullString(flags *pflag.FlagSet, key string) null.String {
	if flags.Lookup(key) == nil {
		return null.String{}
	}
	v, err := flags.GetString(key)
	must(err)

	return null.NewString(v, flags.Changed(key))
}

func getNullBool(flags *pflag.FlagSet, key string) null.Bool {
	if flags.Lookup(key) == nil {
		return null.Bool{}
	}
	v, err := flags.GetBool(key)
	must(err)

	return null.NewBool(v, flags.Changed(key))
}

// fprintf panics when where's an error writing to the supplied io.Writer
func fprintf(w io.Writer, format string, a ...any) (n int) {
	n, err := fmt.Fprintf(w, format, a...)
	must(err)

	return n
}
