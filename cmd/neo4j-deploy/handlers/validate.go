package handlers

import (
	"context"
	"errors"
	"fmt"
)

// ValidateTemplates checks the template against every selected scenario
// without deploying anything.
func ValidateTemplates(ctx context.Context, opts Options, names []string) (err error) {
	ctx, rt, err := open(ctx, opts, "validate-templates")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close()) }()

	selected, err := selectScenarios(rt, len(names) == 0, names)
	if err != nil {
		return err
	}
	p, err := rt.cloud()
	if err != nil {
		return err
	}
	orch := rt.orchestrator(p, nil)

	fmt.Fprintf(stdout, "Validating %s against %d scenario(s)\n", rt.settings.Azure.TemplateRef, len(selected))
	checks, checkErr := orch.ValidateTemplates(ctx, selected)
	passed := 0
	for _, c := range checks {
		if c.Err != nil {
			fmt.Fprintf(stdout, "  [!!] %-30s %v\n", c.Scenario, c.Err)
			continue
		}
		passed++
		fmt.Fprintf(stdout, "  [OK] %s\n", c.Scenario)
	}
	fmt.Fprintf(stdout, "\nSummary: %d passed, %d failed\n", passed, len(checks)-passed)
	return checkErr
}
