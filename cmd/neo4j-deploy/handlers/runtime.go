// Package handlers implements the business logic behind each CLI command.
//
// Handlers load settings once, assemble the orchestrator components and
// print per-deployment outcome lines. Collaborators are created through
// package-level factory variables so tests can replace them.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/logging"
	"github.com/neo4j-partners/neo4j-deploy/internal/metrics"
	"github.com/neo4j-partners/neo4j-deploy/internal/orchestrator"
	"github.com/neo4j-partners/neo4j-deploy/internal/params"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider/azure"
	"github.com/neo4j-partners/neo4j-deploy/internal/reconciler"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
	"github.com/neo4j-partners/neo4j-deploy/internal/secrets"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/state/sqlite"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/naming"
	"github.com/neo4j-partners/neo4j-deploy/internal/validation"
	"github.com/neo4j-partners/neo4j-deploy/internal/validation/neo4j"
)

// Options are the global flags shared by every command.
type Options struct {
	Workspace string
	Verbosity int
}

func (o Options) layout() config.Layout {
	ws := o.Workspace
	if ws == "" {
		ws = config.DefaultWorkspace
	}
	return config.NewLayout(ws)
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	loadSettings  = config.Load
	loadScenarios = scenario.Load

	newCredential = func() (azcore.TokenCredential, error) {
		return azidentity.NewDefaultAzureCredential(nil)
	}

	newProvider = func(s *config.Settings, cred azcore.TokenCredential) (provider.Provider, error) {
		opts := []azure.Option{azure.WithCredential(cred), azure.WithPollInterval(s.Orchestration.PollInterval.Duration)}
		if s.Azure.Endpoint != "" {
			opts = append(opts, azure.WithClientOptions(&arm.ClientOptions{
				ClientOptions: policy.ClientOptions{Cloud: cloud.Configuration{
					ActiveDirectoryAuthorityHost: cloud.AzurePublic.ActiveDirectoryAuthorityHost,
					Services: map[cloud.ServiceName]cloud.ServiceConfiguration{
						cloud.ResourceManager: {Endpoint: s.Azure.Endpoint, Audience: s.Azure.Endpoint},
					},
				}},
			}))
		}
		client, err := azure.New(s.Azure.SubscriptionID, opts...)
		if err != nil {
			return nil, err
		}
		return provider.NewRateLimited(client, s.Orchestration.ProviderRateLimit, s.Orchestration.ProviderBurst), nil
	}

	newSecretGetter = func(cred azcore.TokenCredential) secrets.Getter {
		return secrets.NewKeyVault(cred, nil)
	}

	newWorkload = func() validation.Workload {
		return neo4j.New()
	}

	newStore = func(layout config.Layout, s *config.Settings) (state.Store, error) {
		attempts := s.Orchestration.UpdateAttempts
		if s.State.Backend == config.StateBackendSQLite {
			return sqlite.New(layout.StateDB(), attempts)
		}
		return state.NewFileStore(layout.StateDir(), state.WithUpdateAttempts(attempts))
	}

	now = time.Now
)

// runtime holds the components a command run shares.
type runtime struct {
	layout   config.Layout
	settings *config.Settings
	store    state.Store
	metrics  *metrics.Metrics
	log      logr.Logger

	cred     azcore.TokenCredential
	provider provider.Provider

	closeLog func() error
}

// open loads settings, prepares the workspace and starts logging for command.
func open(ctx context.Context, opts Options, command string) (context.Context, *runtime, error) {
	config.LoadDotEnv()
	layout := opts.layout()

	settings, err := loadSettings(layout.SettingsFile())
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to load settings (run 'neo4j-deploy setup' first): %w", err)
	}
	if err := layout.Ensure(); err != nil {
		return ctx, nil, err
	}

	log, closeLog, err := logging.New(logging.Options{
		Verbosity: opts.Verbosity,
		Console:   os.Stderr,
		File:      filepath.Join(layout.LogsDir(), naming.LogFile(command, now())),
	})
	if err != nil {
		return ctx, nil, err
	}
	ctx = logging.IntoContext(ctx, log.WithValues("command", command))

	store, err := newStore(layout, settings)
	if err != nil {
		_ = closeLog()
		return ctx, nil, fmt.Errorf("failed to open state store: %w", err)
	}

	return ctx, &runtime{
		layout:   layout,
		settings: settings,
		store:    store,
		metrics:  metrics.New(),
		log:      log,
		closeLog: closeLog,
	}, nil
}

// close releases the store, writes metrics and flushes the log.
func (rt *runtime) close() error {
	var errs []error
	if err := rt.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close state store: %w", err))
	}
	if err := rt.metrics.WriteTextfile(rt.layout.MetricsFile()); err != nil {
		errs = append(errs, fmt.Errorf("write metrics: %w", err))
	}
	if err := rt.closeLog(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (rt *runtime) credential() (azcore.TokenCredential, error) {
	if rt.cred != nil {
		return rt.cred, nil
	}
	cred, err := newCredential()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain Azure credential: %w", err)
	}
	rt.cred = cred
	return cred, nil
}

func (rt *runtime) cloud() (provider.Provider, error) {
	if rt.provider != nil {
		return rt.provider, nil
	}
	cred, err := rt.credential()
	if err != nil {
		return nil, err
	}
	p, err := newProvider(rt.settings, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	rt.provider = p
	return p, nil
}

func (rt *runtime) scenarios() (*scenario.Registry, error) {
	reg, err := loadScenarios(rt.layout.ScenariosFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	return reg, nil
}

// validator builds the smoke test runner. Vault-mode settings get a Key
// Vault backed credential resolver.
func (rt *runtime) validator() (*validation.Runner, error) {
	var getter secrets.Getter
	if rt.settings.Secrets.Mode == config.SecretModeVault {
		cred, err := rt.credential()
		if err != nil {
			return nil, err
		}
		getter = newSecretGetter(cred)
	}
	dir := rt.layout.ParamsDir()
	r := validation.NewRunner(rt.store,
		func(id string) (*params.ParameterSet, error) { return params.Load(dir, id) },
		secrets.NewResolver(getter),
		newWorkload(),
		rt.settings.Validation,
		rt.settings.Orchestration.ValidationTimeout.Duration,
	)
	r.Metrics = rt.metrics
	return r, nil
}

func (rt *runtime) reconciler(p provider.Provider) *reconciler.Reconciler {
	r := reconciler.New(rt.store, p, reconciler.OptionsFromSettings(rt.settings))
	r.Metrics = rt.metrics
	return r
}

func (rt *runtime) orchestrator(p provider.Provider, rec *reconciler.Reconciler) *orchestrator.Orchestrator {
	m := params.NewMaterializer(rt.layout.ParamsDir(), rt.store)
	o := orchestrator.New(rt.settings, rt.store, p, m, rec)
	o.Metrics = rt.metrics
	return o
}

// isInteractiveTTY returns true if stdout is a terminal.
func isInteractiveTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
