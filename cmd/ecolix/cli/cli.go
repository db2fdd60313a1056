// Package cli implements the operational subcommands of the ecolix binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// Exit codes shared by every subcommand.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitUsage     = 2
	ExitViolation = 10
)

// Streams carries the writers a command prints to.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (s Streams) withDefaults() Streams {
	if s.Stdout == nil {
		s.Stdout = os.Stdout
	}
	if s.Stderr == nil {
		s.Stderr = os.Stderr
	}
	return s
}

// Command is one subcommand. Run returns the process exit code.
type Command struct {
	Name    string
	Summary string
	Run     func(ctx context.Context, args []string, streams Streams) int
}

// Commands lists the subcommands handled without starting the server.
func Commands() []Command {
	return []Command{
		{Name: "wall", Summary: "verify the academic/financial separation of the role catalog", Run: WallCommand},
		{Name: "check", Summary: "evaluate one permission for a role without overrides", Run: CheckCommand},
		{Name: "grants", Summary: "list the default grants of a role", Run: GrantsCommand},
	}
}

// Lookup returns the subcommand named name.
func Lookup(name string) (Command, bool) {
	for _, c := range Commands() {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Usage prints the subcommand list.
func Usage(out io.Writer) {
	_, _ = fmt.Fprintln(out, "usage: ecolix [serve | <command> [flags]]")
	_, _ = fmt.Fprintln(out, "commands:")
	for _, c := range Commands() {
		_, _ = fmt.Fprintf(out, "  %-8s %s\n", c.Name, c.Summary)
	}
}

// parseFlags parses args into fs, reporting problems on stderr. ok is false
// when the command should return code immediately.
func parseFlags(fs *pflag.FlagSet, args []string, stderr io.Writer) (code int, ok bool) {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK, false
		}
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", fs.Name(), err)
		return ExitUsage, false
	}
	return ExitOK, true
}

func writeJSON(out, stderr io.Writer, name string, v any) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: encode json: %v\n", name, err)
		return ExitError
	}
	return ExitOK
}
