// Package validation runs the post-provisioning smoke test against a
// deployed workload and records the verdict on the deployment record.
package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/metrics"
	"github.com/neo4j-partners/neo4j-deploy/internal/params"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/retry"
)

var (
	// ErrMismatch means the workload returned something other than what was written.
	ErrMismatch = errors.New("read back value does not match written value")
	// ErrLicenseMismatch means an Evaluation deployment reports another license agreement.
	ErrLicenseMismatch = errors.New("workload is not running under the evaluation license")
)

// CredentialSource resolves the admin credential of a parameter set.
type CredentialSource interface {
	Credential(ctx context.Context, ps *params.ParameterSet) (params.Secret, error)
}

// ParamsLoader reads the parameter set of a deployment.
type ParamsLoader func(id string) (*params.ParameterSet, error)

// Runner claims settled-successful deployments and smoke-tests them.
type Runner struct {
	Store       state.Store
	LoadParams  ParamsLoader
	Credentials CredentialSource
	Workload    Workload
	Settings    config.Validation
	// Timeout bounds the whole connect-and-check sequence.
	Timeout time.Duration
	// RetryDelay is the first backoff between attempts.
	RetryDelay time.Duration
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
	NewTag     func() string
}

// NewRunner wires a Runner with real-time defaults.
func NewRunner(store state.Store, load ParamsLoader, creds CredentialSource, w Workload, settings config.Validation, timeout time.Duration) *Runner {
	return &Runner{
		Store:       store,
		LoadParams:  load,
		Credentials: creds,
		Workload:    w,
		Settings:    settings,
		Timeout:     timeout,
		RetryDelay:  2 * time.Second,
		Clock:       clockwork.NewRealClock(),
		NewTag:      func() string { return uuid.NewString() },
	}
}

// Validate runs the smoke test for rec. The record must be Succeeded, or
// Validated/ValidationFailed for a re-test. The returned error is a
// ValidationError when the test ran and failed.
func (r *Runner) Validate(ctx context.Context, rec deployment.Record) (deployment.Record, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("deploymentId", rec.ID)

	claimed, err := r.Store.Update(ctx, rec.ID, func(cur *deployment.Record) error {
		switch cur.Status {
		case deployment.StatusSucceeded, deployment.StatusValidated, deployment.StatusValidationFailed:
		default:
			return fmt.Errorf("%w: cannot validate deployment in status %s", deployment.ErrInvalidTransition, cur.Status)
		}
		if err := cur.Transition(deployment.StatusValidating, r.Clock.Now()); err != nil {
			return err
		}
		cur.ValidationResult = deployment.ValidationNotRun
		cur.ErrorDetail = ""
		return nil
	})
	if err != nil {
		return rec, err
	}
	r.Metrics.RecordTransition(string(rec.Status), string(deployment.StatusValidating))
	log.Info("validating workload", "endpoint", claimed.Endpoint)

	start := r.Clock.Now()
	checkErr := r.check(ctx, claimed)
	elapsed := r.Clock.Since(start)

	// The verdict is persisted even if ctx was cancelled mid-check.
	final, err := r.Store.Update(context.WithoutCancel(ctx), rec.ID, func(cur *deployment.Record) error {
		if checkErr == nil {
			cur.ValidationResult = deployment.ValidationPass
			return cur.Transition(deployment.StatusValidated, r.Clock.Now())
		}
		cur.ValidationResult = deployment.ValidationFail
		cur.ErrorDetail = checkErr.Error()
		return cur.Transition(deployment.StatusValidationFailed, r.Clock.Now())
	})
	if err != nil {
		return claimed, err
	}
	r.Metrics.RecordTransition(string(deployment.StatusValidating), string(final.Status))
	r.Metrics.RecordValidation(string(final.ValidationResult), elapsed)

	if checkErr != nil {
		log.Info("validation failed", "error", checkErr.Error(), "elapsed", elapsed.String())
		return final, deployment.NewError(deployment.KindValidation, "validate", rec.ID, checkErr)
	}
	log.Info("validation passed", "elapsed", elapsed.String())
	return final, nil
}

func (r *Runner) check(ctx context.Context, rec deployment.Record) error {
	if rec.Endpoint == "" {
		return errors.New("no workload endpoint recorded")
	}
	ps, err := r.LoadParams(rec.ID)
	if err != nil {
		return fmt.Errorf("load parameters: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	password, err := r.Credentials.Credential(ctx, ps)
	if err != nil {
		return fmt.Errorf("resolve credential: %w", err)
	}
	evaluation := licenseType(ps) == scenario.LicenseEvaluation
	target := Target{
		URI:      rec.Endpoint,
		Username: r.Settings.Username,
		Password: password,
		Database: r.Settings.Database,
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("deploymentId", rec.ID)
	var lastErr error
	err = retry.WithExponentialBackoff(ctx, func() error {
		lastErr = r.sequence(ctx, target, evaluation)
		return lastErr
	},
		retry.WithClock(r.Clock),
		// The deadline, not the attempt count, bounds this loop.
		retry.WithMaxRetries(1<<20),
		retry.WithInitialDelay(r.RetryDelay),
		retry.WithMaxDelay(30*time.Second),
		retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			log.V(1).Info("workload not ready", "attempt", attempt, "error", err.Error(), "retryIn", wait.String())
		}),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMismatch), errors.Is(err, ErrLicenseMismatch):
		return lastErr
	case ctx.Err() != nil:
		if lastErr != nil {
			return fmt.Errorf("timeout after %s: %w", r.Timeout, lastErr)
		}
		return fmt.Errorf("timeout after %s", r.Timeout)
	default:
		return err
	}
}

func licenseType(ps *params.ParameterSet) string {
	p, ok := ps.Values[params.ParamLicenseType]
	if !ok || p.Value == nil {
		return ""
	}
	return fmt.Sprint(p.Value)
}

// sequence writes a tagged record, reads it back, compares and deletes it.
// For Evaluation deployments it then checks the license agreement.
func (r *Runner) sequence(ctx context.Context, t Target, evaluation bool) (err error) {
	sess, err := r.Workload.Connect(ctx, t)
	if err != nil {
		return fmt.Errorf("connect %s: %w", t.URI, err)
	}
	defer func() {
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	}()

	tag := r.NewTag()
	payload := "neo4j-deploy smoke test " + tag
	if err := sess.Write(ctx, tag, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got, err := sess.Read(ctx, tag)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if got != payload {
		_ = sess.Delete(ctx, tag)
		return retry.Fatal(fmt.Errorf("%w: got %q", ErrMismatch, got))
	}
	if err := sess.Delete(ctx, tag); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if evaluation {
		return checkEvaluationLicense(ctx, sess)
	}
	return nil
}

// checkEvaluationLicense fails only when the server positively reports an
// agreement other than the evaluation one. Servers that cannot report it
// are logged and accepted.
func checkEvaluationLicense(ctx context.Context, sess Session) error {
	log := logr.FromContextOrDiscard(ctx)
	agreement, err := sess.LicenseAgreement(ctx)
	switch {
	case err != nil:
		log.Info("license check inconclusive", "error", err.Error())
		return nil
	case agreement == "":
		log.Info("license check inconclusive", "reason", "no agreement reported")
		return nil
	case agreement != EvaluationAgreement:
		return retry.Fatal(fmt.Errorf("%w: agreement %q", ErrLicenseMismatch, agreement))
	}
	log.V(1).Info("evaluation license verified")
	return nil
}
