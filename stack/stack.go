// Package stack declares the resources of a Diversitus deployment and
// deploys them.
//
// A deployment creates the container registry and image, the jobs, companies
// and users tables, the roles the service runs with, the hosted zone, a DNS
// validated certificate, the load balancer and the service behind it, and
// finally the alias record pointing the domain at the load balancer. Once the
// tables are available the seed data is written.
package stack

import (
	"context"
	"fmt"

	"github.com/diversitus/infra/config"
	"github.com/diversitus/infra/provider"
	"github.com/diversitus/infra/resource"
	"github.com/diversitus/infra/resource/graph"
	"github.com/diversitus/infra/resource/reconciler"
	"github.com/diversitus/infra/seed"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// A Deployer deploys a stack to a cloud.
type Deployer struct {
	Config *config.Stack
	Cloud  *provider.Cloud

	// Validator waits for certificate validation. If not set, the
	// reconciler default is used.
	Validator reconciler.Validator

	// Concurrency sets the maximum number of resources reconciled at the
	// same time. If not set, the reconciler default is used.
	Concurrency uint

	// Identifiers persists the identifiers assigned to seed records.
	// Optional.
	Identifiers seed.Identifiers

	// SeedData overrides the seed data. If not set, the seed file from the
	// configuration is used, or the built in dataset if no file is set.
	SeedData *seed.File

	// Logger logs deployment progress. If not set, logs are discarded.
	Logger *zap.Logger
}

// Outputs are the exported values of a deployment.
type Outputs struct {
	// URL is the public url of the service. It is only set if the alias
	// record was created.
	URL string

	// NameServers are the name servers of the hosted zone, to be configured
	// at the domain registrar.
	NameServers []string
}

// A Result is the outcome of a deployment.
type Result struct {
	Report  *reconciler.Report
	Outputs Outputs

	// Seed is set if seed data was written.
	Seed *seed.Result
}

// TableName returns the name of a table in a stack.
func TableName(cfg *config.Stack, table string) string {
	return fmt.Sprintf("%s-%s", cfg.Project.Name, table)
}

func (d *Deployer) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Graph builds the resource graph for the stack.
func (d *Deployer) Graph() (*graph.Graph, error) {
	g, err := graph.Build(Resources(d.Config))
	if err != nil {
		return nil, errors.Wrap(err, "build graph")
	}
	return g, nil
}

// Deploy reconciles every resource in the stack and seeds the tables.
//
// Seeding only happens if both the jobs and the companies table were
// validated, even if other resources failed. A result is returned whenever
// the graph could be built. The returned error combines the reconciliation
// error and the seed error. If ctx is cancelled, the *resource.CancelledError
// from the reconciler is returned and seeding is skipped.
func (d *Deployer) Deploy(ctx context.Context) (*Result, error) {
	logger := d.logger().With(zap.String("project", d.Config.Project.Name))

	g, err := d.Graph()
	if err != nil {
		return nil, err
	}

	rec := &reconciler.Reconciler{
		Registry:    provider.Handlers(d.Cloud),
		Validator:   d.Validator,
		Concurrency: d.Concurrency,
		Logger:      logger,
	}
	rep, applyErr := rec.Apply(ctx, g)
	res := &Result{
		Report:  rep,
		Outputs: d.outputs(rep),
	}
	logger.Info("Applied",
		zap.Int("validated", len(rep.Succeeded())),
		zap.Int("failed", len(rep.Failed())),
		zap.Int("skipped", len(rep.Skipped())),
	)
	if _, ok := applyErr.(*resource.CancelledError); ok {
		return res, applyErr
	}

	if d.Config.Seed != nil && d.Config.Seed.Disabled {
		logger.Info("Seed disabled")
		return res, applyErr
	}
	companies, cok := tableName(rep, CompaniesTable)
	jobs, jok := tableName(rep, JobsTable)
	if !cok || !jok {
		logger.Warn("Skipping seed, tables are not available")
		return res, applyErr
	}

	sr, err := d.seed(ctx, companies, jobs)
	if err != nil {
		return res, multierr.Append(applyErr, errors.Wrap(err, "seed"))
	}
	res.Seed = sr
	return res, applyErr
}

// Seed writes the seed data to the tables of an already deployed stack.
func (d *Deployer) Seed(ctx context.Context) (*seed.Result, error) {
	return d.seed(ctx, TableName(d.Config, "companies"), TableName(d.Config, "jobs"))
}

func (d *Deployer) seed(ctx context.Context, companyTable, jobTable string) (*seed.Result, error) {
	data, err := d.seedData()
	if err != nil {
		return nil, err
	}
	sync := &seed.Synchronizer{
		Store:       d.Cloud.Tables,
		Identifiers: d.Identifiers,
		Logger:      d.logger(),
	}
	return sync.Seed(ctx, data.Companies, data.Jobs, companyTable, jobTable)
}

func (d *Deployer) seedData() (*seed.File, error) {
	if d.SeedData != nil {
		return d.SeedData, nil
	}
	if d.Config.Seed != nil && d.Config.Seed.File != "" {
		return seed.LoadFile(d.Config.Seed.File)
	}
	return seed.Default(), nil
}

func (d *Deployer) outputs(rep *reconciler.Report) Outputs {
	var out Outputs
	validated := rep.Outputs()
	if _, ok := validated[AliasRecord]; ok {
		out.URL = "https://" + d.Config.Project.Domain
	}
	if zone, ok := validated[Zone]; ok {
		ns, err := zone.Strings("name_servers")
		if err == nil {
			out.NameServers = ns
		}
	}
	return out
}

// tableName returns the name output of a validated table.
func tableName(rep *reconciler.Report, res string) (string, bool) {
	outputs, ok := rep.Outputs()[res]
	if !ok {
		return "", false
	}
	name, err := outputs.String("name")
	if err != nil {
		return "", false
	}
	return name, true
}
