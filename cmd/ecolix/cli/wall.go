package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/ecolix/ecolix/internal/rbac"
)

// WallSummary is the JSON output of the wall command.
type WallSummary struct {
	OK         bool            `json:"ok"`
	Grants     int             `json:"grants"`
	Violations []WallViolation `json:"violations"`
}

// WallViolation is one offending catalog entry.
type WallViolation struct {
	Role     string `json:"role"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    string `json:"scope"`
	Message  string `json:"message"`
}

// WallCommand verifies the default catalog. It exits with ExitViolation when
// any role reaches across the wall.
func WallCommand(ctx context.Context, args []string, streams Streams) int {
	return runWall(rbac.DefaultCatalog(), args, streams)
}

func runWall(catalog *rbac.Catalog, args []string, streams Streams) int {
	streams = streams.withDefaults()
	fs := pflag.NewFlagSet("wall", pflag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "print the result as JSON")
	if code, ok := parseFlags(fs, args, streams.Stderr); !ok {
		return code
	}

	summary := WallSummary{Grants: catalog.Len(), Violations: []WallViolation{}}
	if err := rbac.VerifyWall(catalog); err != nil {
		summary.Violations = collectViolations(err)
		if len(summary.Violations) == 0 {
			_, _ = fmt.Fprintf(streams.Stderr, "wall: %v\n", err)
			return ExitError
		}
	}
	summary.OK = len(summary.Violations) == 0

	if *jsonOutput {
		if code := writeJSON(streams.Stdout, streams.Stderr, "wall", summary); code != ExitOK {
			return code
		}
	} else if summary.OK {
		_, _ = fmt.Fprintf(streams.Stdout, "wall intact: %d grants checked\n", summary.Grants)
	} else {
		_, _ = fmt.Fprintf(streams.Stdout, "%d wall violation(s):\n", len(summary.Violations))
		for _, v := range summary.Violations {
			_, _ = fmt.Fprintf(streams.Stdout, " - %s\n", v.Message)
		}
	}
	if !summary.OK {
		return ExitViolation
	}
	return ExitOK
}

func collectViolations(err error) []WallViolation {
	var out []WallViolation
	var walk func(error)
	walk = func(err error) {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		var v rbac.WallViolation
		if errors.As(err, &v) {
			out = append(out, WallViolation{
				Role:     v.Role.String(),
				Resource: v.Resource.String(),
				Action:   v.Action.String(),
				Scope:    v.Scope.String(),
				Message:  v.Error(),
			})
		}
	}
	walk(err)
	return out
}
