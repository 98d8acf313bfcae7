package stack_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/diversitus/infra/config"
	"github.com/diversitus/infra/provider/mock"
	"github.com/diversitus/infra/resource"
	"github.com/diversitus/infra/resource/waiter"
	"github.com/diversitus/infra/stack"
	"github.com/diversitus/infra/storage"
	"github.com/diversitus/infra/storage/kvbackend"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Stack {
	return &config.Stack{
		Dir: "/src/infrastructure",
		Project: config.Project{
			Name:       "diversitus",
			Region:     "eu-west-1",
			Domain:     "api.example.com",
			RootDomain: "example.com",
		},
		App: &config.App{
			Context:      "/src",
			Dockerfile:   "backend/app/Dockerfile",
			Platform:     "linux/amd64",
			Tag:          "latest",
			Port:         8080,
			CPU:          256,
			Memory:       512,
			DesiredCount: 1,
			Environment:  map[string]string{"LOG_LEVEL": "debug"},
		},
		Seed: &config.Seed{},
	}
}

var fastPolicy = &waiter.RetryPolicy{
	InitialInterval: time.Millisecond,
	Multiplier:      1,
	MaxInterval:     time.Millisecond,
	MaxAttempts:     10,
}

func newDeployer(t *testing.T, cloud *mock.Cloud) *stack.Deployer {
	return &stack.Deployer{
		Config:      testConfig(),
		Cloud:       cloud.Provider(),
		Validator:   &waiter.Waiter{Policy: fastPolicy},
		Identifiers: &storage.KV{Backend: &kvbackend.Memory{}, Namespace: "diversitus"},
		Logger:      zaptest.NewLogger(t),
	}
}

func TestDeployer_Graph(t *testing.T) {
	d := &stack.Deployer{Config: testConfig()}
	g, err := d.Graph()
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}

	wantOrder := []string{
		stack.Repository,
		stack.Image,
		stack.JobsTable,
		stack.CompaniesTable,
		stack.UsersTable,
		stack.TaskRole,
		stack.ExecutionRole,
		stack.Zone,
		stack.Certificate,
		stack.CertificateValidation,
		stack.LoadBalancer,
		stack.Service,
		stack.AliasRecord,
	}
	if diff := cmp.Diff(g.Order(), wantOrder); diff != "" {
		t.Errorf("Order() (-got +want)\n%s", diff)
	}

	tests := []struct {
		name string
		want []string
	}{
		{stack.Image, []string{stack.Repository}},
		{stack.TaskRole, []string{stack.JobsTable, stack.CompaniesTable, stack.UsersTable}},
		{stack.CertificateValidation, []string{stack.Zone, stack.Certificate}},
		{stack.LoadBalancer, []string{stack.CertificateValidation}},
		{stack.Service, []string{
			stack.Image,
			stack.JobsTable,
			stack.CompaniesTable,
			stack.UsersTable,
			stack.TaskRole,
			stack.ExecutionRole,
			stack.LoadBalancer,
		}},
		{stack.AliasRecord, []string{stack.Zone, stack.LoadBalancer}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(g.Dependencies(tc.name), tc.want); diff != "" {
				t.Errorf("Dependencies() (-got +want)\n%s", diff)
			}
		})
	}
}

func TestDeployer_Deploy(t *testing.T) {
	ctx := context.Background()
	cloud := &mock.Cloud{Region: "eu-west-1"}
	d := newDeployer(t, cloud)

	res, err := d.Deploy(ctx)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	wantOutputs := stack.Outputs{
		URL:         "https://api.example.com",
		NameServers: []string{"ns-1.awsdns-00.com", "ns-1.awsdns-01.net"},
	}
	if diff := cmp.Diff(res.Outputs, wantOutputs); diff != "" {
		t.Errorf("Outputs (-got +want)\n%s", diff)
	}
	if res.Seed == nil {
		t.Fatal("Seed not set")
	}
	if got, want := res.Seed.New, 8; got != want {
		t.Errorf("Seed.New = %d, want %d", got, want)
	}
	if got := cloud.Items("diversitus-companies"); got != 3 {
		t.Errorf("companies = %d, want 3", got)
	}
	if got := cloud.Items("diversitus-jobs"); got != 5 {
		t.Errorf("jobs = %d, want 5", got)
	}

	svc, ok := cloud.Service("diversitus-service")
	if !ok {
		t.Fatal("service not created")
	}
	wantEnv := map[string]string{
		"JOBS_TABLE_NAME":      "diversitus-jobs",
		"COMPANIES_TABLE_NAME": "diversitus-companies",
		"USERS_TABLE_NAME":     "diversitus-users",
		"AWS_REGION":           "eu-west-1",
		"LOG_LEVEL":            "debug",
	}
	if diff := cmp.Diff(svc.Task.Environment, wantEnv); diff != "" {
		t.Errorf("Environment (-got +want)\n%s", diff)
	}
	if !svc.AssignPublicIP {
		t.Error("AssignPublicIP = false")
	}

	policy, ok := cloud.Policy("diversitus-task", "diversitus-db-access")
	if !ok {
		t.Fatal("db access policy not attached")
	}
	for _, s := range []string{"dynamodb:PutItem", ":table/diversitus-users/index/EmailIndex"} {
		if !strings.Contains(policy, s) {
			t.Errorf("policy does not contain %q:\n%s", s, policy)
		}
	}

	alias, ok := cloud.Record("Z00000001", "api.example.com", "A")
	if !ok {
		t.Fatal("alias record not created")
	}
	if alias.Alias == nil {
		t.Error("record is not an alias")
	}

	// A second deployment converges without creating anything.
	n := len(cloud.Events())
	res, err = d.Deploy(ctx)
	if err != nil {
		t.Fatalf("Deploy() second run error = %v", err)
	}
	for _, e := range cloud.Events()[n:] {
		if e.Op == "create" {
			t.Errorf("second run: %s", e)
		}
	}
	if got := res.Seed.New; got != 0 {
		t.Errorf("second run: Seed.New = %d, want 0", got)
	}
	if got := cloud.Items("diversitus-jobs"); got != 5 {
		t.Errorf("second run: jobs = %d, want 5", got)
	}
}

func TestDeployer_Deploy_failure(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadBalancer", func(t *testing.T) {
		cloud := &mock.Cloud{Errors: map[string]error{
			"load_balancer diversitus-lb": errors.New("quota exceeded"),
		}}
		res, err := newDeployer(t, cloud).Deploy(ctx)
		if err == nil {
			t.Fatal("Deploy() did not return an error")
		}
		if !strings.Contains(err.Error(), "quota exceeded") {
			t.Errorf("Deploy() error = %v", err)
		}
		var skipped []string
		for _, s := range res.Report.Skipped() {
			skipped = append(skipped, s.Resource)
		}
		if diff := cmp.Diff(skipped, []string{stack.Service, stack.AliasRecord}); diff != "" {
			t.Errorf("Skipped() (-got +want)\n%s", diff)
		}
		if res.Outputs.URL != "" {
			t.Errorf("URL = %q, want empty", res.Outputs.URL)
		}
		if res.Seed == nil {
			t.Error("tables were not seeded")
		}
	})

	t.Run("Table", func(t *testing.T) {
		cloud := &mock.Cloud{Errors: map[string]error{
			"table diversitus-jobs": errors.New("limit exceeded"),
		}}
		res, err := newDeployer(t, cloud).Deploy(ctx)
		if err == nil {
			t.Fatal("Deploy() did not return an error")
		}
		if res.Seed != nil {
			t.Error("tables were seeded")
		}
		if got := cloud.Items("diversitus-companies"); got != 0 {
			t.Errorf("companies = %d, want 0", got)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cloud := &mock.Cloud{}
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		res, err := newDeployer(t, cloud).Deploy(ctx)
		var cancelled *resource.CancelledError
		if !errors.As(err, &cancelled) {
			t.Fatalf("Deploy() error = %v, want *resource.CancelledError", err)
		}
		if res.Seed != nil {
			t.Error("tables were seeded")
		}
	})
}

func TestDeployer_Deploy_seedDisabled(t *testing.T) {
	cloud := &mock.Cloud{}
	d := newDeployer(t, cloud)
	d.Config.Seed.Disabled = true
	res, err := d.Deploy(context.Background())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if res.Seed != nil {
		t.Error("tables were seeded")
	}
	if got := cloud.Items("diversitus-jobs"); got != 0 {
		t.Errorf("jobs = %d, want 0", got)
	}
}
