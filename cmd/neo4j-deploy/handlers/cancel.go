package handlers

import (
	"context"
	"errors"
	"fmt"
)

// Cancel flags a provisioning deployment and immediately applies the
// cancellation: its container deletion is requested and the record fails.
func Cancel(ctx context.Context, opts Options, id string) (err error) {
	ctx, rt, err := open(ctx, opts, "cancel")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close()) }()

	p, err := rt.cloud()
	if err != nil {
		return err
	}
	rec := rt.reconciler(p)
	orch := rt.orchestrator(p, rec)

	flagged, err := orch.Cancel(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Cancellation requested for %s\n", id)

	updated, err := rec.Poll(ctx, flagged)
	if err != nil {
		fmt.Fprintln(stdout, "Cancellation will be applied by the next status poll.")
		return err
	}
	printOutcome(updated)
	return nil
}
