package orchestrator_test

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neo4j-partners/neo4j-deploy/internal/cleanup"
	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/orchestrator"
	"github.com/neo4j-partners/neo4j-deploy/internal/params"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider/fake"
	"github.com/neo4j-partners/neo4j-deploy/internal/reconciler"
	"github.com/neo4j-partners/neo4j-deploy/internal/report"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
	"github.com/neo4j-partners/neo4j-deploy/internal/secrets"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/validation"
	"github.com/neo4j-partners/neo4j-deploy/internal/validation/inmem"
)

var _ = Describe("Deployment lifecycle", func() {
	var (
		ctx       context.Context
		settings  *config.Settings
		store     state.Store
		cloud     *fake.Provider
		workload  *inmem.Workload
		recon     *reconciler.Reconciler
		orch      *orchestrator.Orchestrator
		paramsDir string
		sc        scenario.Scenario
	)

	inProgress := provider.Status{State: provider.StateInProgress}
	succeeded := provider.Status{State: provider.StateSucceeded, Outputs: map[string]any{
		reconciler.OutputBrowserURL: map[string]any{"type": "String", "value": "http://10.1.0.4:7474"},
	}}

	BeforeEach(func() {
		ctx = logr.NewContext(context.Background(), funcr.New(func(prefix, args string) {
			GinkgoWriter.Println(prefix, args)
		}, funcr.Options{}))

		settings = config.Defaults()
		settings.Azure.SubscriptionID = "sub-1"
		settings.Azure.TemplateRef = "marketplace/neo4j-enterprise/mainTemplate.json"

		var err error
		store, err = state.NewFileStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		cloud = fake.New()
		cloud.DeleteLag = 1
		workload = inmem.New()
		paramsDir = GinkgoT().TempDir()

		m := params.NewMaterializer(paramsDir, store)
		m.Getenv = func(string) string { return "" }

		runner := validation.NewRunner(store,
			func(id string) (*params.ParameterSet, error) { return params.Load(paramsDir, id) },
			secrets.NewResolver(nil), workload, settings.Validation, time.Minute)
		runner.RetryDelay = time.Millisecond

		recon = reconciler.New(store, cloud, reconciler.OptionsFromSettings(settings))
		recon.Clock = clockwork.NewFakeClockAt(time.Now())
		recon.OnSucceeded = runner.Validate

		orch = orchestrator.New(settings, store, cloud, m, recon)
		orch.RetryDelay = time.Millisecond

		for _, s := range scenario.DefaultScenarios() {
			if s.Name == "standalone-v5" {
				sc = s
			}
		}
	})

	When("the provider reports success on the second poll", func() {
		BeforeEach(func() {
			cloud.DefaultScript = []provider.Status{inProgress, succeeded}
		})

		It("provisions, validates and reports the deployment", func() {
			By("deploying the scenario")
			rec, err := orch.Deploy(ctx, sc)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(deployment.StatusProvisioning))

			By("polling while the provider is still working")
			recs, err := recon.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Status).To(Equal(deployment.StatusProvisioning))

			By("polling once the provider reports success")
			recs, err = recon.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(recs[0].Status).To(Equal(deployment.StatusValidated))
			Expect(cloud.Polls(rec.ContainerName, rec.DeploymentName)).To(Equal(2))

			got, err := store.Get(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ValidationResult).To(Equal(deployment.ValidationPass))
			Expect(got.Endpoint).To(Equal("neo4j://10.1.0.4:7687"))
			Expect(got.BrowserURL).To(Equal("http://10.1.0.4:7474"))

			By("checking the smoke test wrote, read and removed its data")
			Expect(workload.Writes()).To(Equal(1))
			Expect(workload.Deletes()).To(Equal(1))
			Expect(workload.Len()).To(BeZero())

			By("building the report")
			all, err := store.List(ctx, state.Filter{})
			Expect(err).NotTo(HaveOccurred())
			summary := report.Build("all", all, time.Now())
			Expect(summary.Rows).To(HaveLen(1))
			Expect(summary.Rows[0].Status).To(Equal(deployment.StatusValidated))
			Expect(summary.Rows[0].Validation).To(Equal(deployment.ValidationPass))
			Expect(summary.Failing()).To(BeEmpty())
		})

		It("cleans up a validated deployment", func() {
			rec, err := orch.Deploy(ctx, sc)
			Expect(err).NotTo(HaveOccurred())
			for range 2 {
				_, err = recon.RunOnce(ctx)
				Expect(err).NotTo(HaveOccurred())
			}

			mgr := cleanup.NewManager(store, cloud, paramsDir, settings.Orchestration)
			mgr.ConfirmInterval = time.Millisecond
			mgr.RetryDelay = time.Millisecond
			summary, err := mgr.Cleanup(ctx, cleanup.ByID(rec.ID), cleanup.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Count(cleanup.ActionCleaned)).To(Equal(1))

			Expect(cloud.HasContainer(rec.ContainerName)).To(BeFalse())
			_, err = store.Get(ctx, rec.ID)
			Expect(err).To(MatchError(deployment.ErrNotFound))
			_, err = params.Load(paramsDir, rec.ID)
			Expect(err).To(HaveOccurred())
		})
	})

	When("the provider reports failure", func() {
		BeforeEach(func() {
			cloud.DefaultScript = []provider.Status{
				inProgress,
				{State: provider.StateFailed, Detail: "QuotaExceeded: not enough cores"},
			}
		})

		It("settles the deployment as failed without validating", func() {
			rec, err := orch.Deploy(ctx, sc)
			Expect(err).NotTo(HaveOccurred())

			for range 2 {
				_, err = recon.RunOnce(ctx)
				Expect(err).NotTo(HaveOccurred())
			}

			got, err := store.Get(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(deployment.StatusFailed))
			Expect(got.ErrorDetail).To(ContainSubstring("QuotaExceeded"))
			Expect(workload.Connects()).To(BeZero())

			summary := report.Build("all", []deployment.Record{got}, time.Now())
			Expect(summary.Failing()).To(HaveLen(1))
		})
	})

	When("the workload returns corrupted data", func() {
		BeforeEach(func() {
			cloud.DefaultScript = []provider.Status{succeeded}
			workload.Corrupt = true
		})

		It("records a failed validation", func() {
			rec, err := orch.Deploy(ctx, sc)
			Expect(err).NotTo(HaveOccurred())

			_, err = recon.RunOnce(ctx)
			Expect(err).To(HaveOccurred())
			Expect(deployment.IsKind(err, deployment.KindValidation)).To(BeTrue())

			got, err := store.Get(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(deployment.StatusValidationFailed))
			Expect(got.ValidationResult).To(Equal(deployment.ValidationFail))
		})
	})

	When("a deployment is cancelled", func() {
		BeforeEach(func() {
			cloud.DefaultScript = []provider.Status{inProgress}
		})

		It("deletes the container on the next poll", func() {
			rec, err := orch.Deploy(ctx, sc)
			Expect(err).NotTo(HaveOccurred())

			_, err = orch.Cancel(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = recon.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())

			got, err := store.Get(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(deployment.StatusFailed))
			Expect(got.ErrorDetail).To(Equal(reconciler.DetailCancelled))
			Expect(cloud.Calls("DeleteContainer")).To(Equal(1))
		})
	})
})
