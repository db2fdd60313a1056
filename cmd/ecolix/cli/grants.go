package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/ecolix/ecolix/internal/rbac"
)

// GrantsCommand prints the default catalog entries of --role.
func GrantsCommand(ctx context.Context, args []string, streams Streams) int {
	streams = streams.withDefaults()
	fs := pflag.NewFlagSet("grants", pflag.ContinueOnError)
	roleName := fs.String("role", "", "role to list (required)")
	jsonOutput := fs.Bool("json", false, "print the grants as JSON")
	if code, ok := parseFlags(fs, args, streams.Stderr); !ok {
		return code
	}
	role, err := rbac.ParseRole(*roleName)
	if err != nil {
		_, _ = fmt.Fprintf(streams.Stderr, "grants: %v\n", err)
		return ExitUsage
	}
	grants := rbac.DefaultCatalog().Grants(role)
	if *jsonOutput {
		if grants == nil {
			grants = []rbac.Grant{}
		}
		return writeJSON(streams.Stdout, streams.Stderr, "grants", grants)
	}
	tw := tabwriter.NewWriter(streams.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RESOURCE\tBRANCH\tACTION\tSCOPE")
	for _, g := range grants {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.Resource, g.Resource.Branch(), g.Action, g.Scope)
	}
	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(streams.Stderr, "grants: %v\n", err)
		return ExitError
	}
	return ExitOK
}
