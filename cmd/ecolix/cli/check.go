package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ecolix/ecolix/internal/rbac"
)

// CheckResult is the JSON output of the check command.
type CheckResult struct {
	Role     string `json:"role"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Granted  bool   `json:"granted"`
	Scope    string `json:"scope,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// CheckCommand evaluates --resource/--action for an active principal holding
// --role. Exit code is ExitOK when granted and ExitViolation when denied.
func CheckCommand(ctx context.Context, args []string, streams Streams) int {
	streams = streams.withDefaults()
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	roleName := fs.String("role", "", "role to evaluate (required)")
	resourceName := fs.String("resource", "", "resource name (required)")
	actionName := fs.String("action", "", "action name (required)")
	level := fs.String("level", "", "school level of the principal")
	jsonOutput := fs.Bool("json", false, "print the decision as JSON")
	if code, ok := parseFlags(fs, args, streams.Stderr); !ok {
		return code
	}
	if *roleName == "" || *resourceName == "" || *actionName == "" {
		_, _ = fmt.Fprintln(streams.Stderr, "check: --role, --resource and --action are required")
		return ExitUsage
	}
	role, err := rbac.ParseRole(*roleName)
	if err != nil {
		_, _ = fmt.Fprintf(streams.Stderr, "check: %v\n", err)
		return ExitUsage
	}
	check, err := rbac.ParseCheck(*resourceName, *actionName)
	if err != nil {
		_, _ = fmt.Fprintf(streams.Stderr, "check: %v\n", err)
		return ExitUsage
	}

	pc := rbac.NewPermissionContext(rbac.Principal{Role: role, SchoolLevel: *level, Active: true}, time.Now(), nil)
	decision, err := rbac.NewEvaluator(nil).Evaluate(pc, check.Resource, check.Action)
	if err != nil {
		_, _ = fmt.Fprintf(streams.Stderr, "check: %v\n", err)
		return ExitError
	}
	result := CheckResult{
		Role:     role.String(),
		Resource: check.Resource.String(),
		Action:   check.Action.String(),
		Granted:  decision.Granted,
		Reason:   decision.Reason,
	}
	if decision.Granted {
		result.Scope = decision.Scope.String()
	}

	if *jsonOutput {
		if code := writeJSON(streams.Stdout, streams.Stderr, "check", result); code != ExitOK {
			return code
		}
	} else if result.Granted {
		_, _ = fmt.Fprintf(streams.Stdout, "%s may %s %s (scope %s)\n", result.Role, result.Action, result.Resource, result.Scope)
	} else {
		_, _ = fmt.Fprintf(streams.Stdout, "%s may not %s %s: %s\n", result.Role, result.Action, result.Resource, result.Reason)
	}
	if !result.Granted {
		return ExitViolation
	}
	return ExitOK
}
