// Package flagx picks a subset of command-line flags out of os.Args so that
// each config layer can parse only the flags it owns.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// flagName strips leading dashes so "-c", "--c" and "c" compare equal.
func flagName(s string) string {
	return strings.TrimLeft(s, "-")
}

// FilterArgs keeps only the allowed flags of args together with their
// values. Both "-name value" and "-name=value" are recognised, and a flag
// may be written with one or two dashes regardless of how it is listed in
// allowed. The result is never nil.
func FilterArgs(args []string, allowed []string) []string {
	names := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		names[flagName(f)] = struct{}{}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		name, _, hasValue := strings.Cut(arg, "=")
		if _, ok := names[flagName(name)]; !ok {
			continue
		}

		out = append(out, arg)
		if !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}

	return out
}

// ConfigPath returns the config file named by -c / -config in args. When
// neither flag is given it falls back to the envVar environment variable.
// An empty result means no file should be loaded.
func ConfigPath(args []string, envVar string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	if path == "" && envVar != "" {
		path = os.Getenv(envVar)
	}
	return path
}
