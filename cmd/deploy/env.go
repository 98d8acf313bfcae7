package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/awserr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/diversitus/infra/config"
	"github.com/diversitus/infra/provider"
	"github.com/diversitus/infra/provider/aws"
	"github.com/diversitus/infra/provider/docker"
	"github.com/diversitus/infra/provider/mock"
	"github.com/diversitus/infra/stack"
	"github.com/diversitus/infra/storage"
	"github.com/diversitus/infra/storage/kvbackend"
	"github.com/hashicorp/hcl2/hcl"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dynamoPrefix selects a DynamoDB table for storing seed identifiers.
const dynamoPrefix = "dynamodb:"

// env is the environment a command runs in.
type env struct {
	stack  *config.Stack
	logger *zap.Logger
	cloud  *provider.Cloud
	aws    *aws.Cloud // Not set in a dry run.
	closer func() error
}

func (e *env) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

func addStateFlag(cmd *cobra.Command) {
	cmd.Flags().String("state", "", "Seed identifier state: a bolt file or dynamodb:<table>. Overrides the seed state in the config")
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.DisableStacktrace = !verbose
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}

// loadStack finds and loads the configuration for the project containing
// dir. Diagnostics are written to stderr.
func loadStack(dir string) (*config.Stack, error) {
	loader := &config.Loader{}
	root, err := loader.Root(dir)
	if err != nil {
		return nil, err
	}
	if root == "" {
		return nil, errors.Errorf("%s not found in %s or any parent directory", config.Filename, dir)
	}
	st, err := loader.Load(root)
	if diags, ok := err.(hcl.Diagnostics); ok {
		loader.WriteDiagnostics(os.Stderr, diags)
		return nil, errors.New("invalid configuration")
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func setup(cmd *cobra.Command, args []string) (*env, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	st, err := loadStack(dir)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	e := &env{stack: st, logger: logger}

	// Only defined for commands that support it.
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		logger.Info("Dry run, using in-memory cloud")
		e.cloud = (&mock.Cloud{Region: st.Project.Region}).Provider()
		return e, nil
	}

	cloud, err := aws.New(st.Project.Region)
	if err != nil {
		return nil, err
	}
	cloud.Logger = logger.Named("aws")
	builder := &docker.Builder{
		Credentials: cloud.RegistryCredentials,
		Logger:      logger.Named("docker"),
	}
	e.aws = cloud
	e.cloud = cloud.Provider(builder)
	return e, nil
}

// identifiers opens the store for seed identifiers. In a dry run the
// identifiers are kept in memory.
func (e *env) identifiers(ctx context.Context, cmd *cobra.Command) (*storage.KV, error) {
	kv := &storage.KV{Namespace: e.stack.Project.Name}
	if e.aws == nil {
		kv.Backend = &kvbackend.Memory{}
		return kv, nil
	}

	state, err := cmd.Flags().GetString("state")
	if err != nil {
		return nil, err
	}
	if state == "" {
		state = e.stack.Seed.State
	}

	if strings.HasPrefix(state, dynamoPrefix) {
		backend := kvbackend.NewDynamoDB(e.aws.Config, strings.TrimPrefix(state, dynamoPrefix))
		if err := backend.CreateTable(ctx); err != nil {
			if aerr, ok := errors.Cause(err).(awserr.Error); !ok || aerr.Code() != dynamodb.ErrCodeResourceInUseException {
				return nil, err
			}
		}
		kv.Backend = backend
		return kv, nil
	}

	var bolt *kvbackend.Bolt
	if state == "" {
		bolt, err = kvbackend.NewBolt()
	} else {
		bolt, err = kvbackend.NewBoltWithFile(state)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open state")
	}
	e.closer = bolt.Close
	kv.Backend = bolt
	return kv, nil
}

func (e *env) deployer(ctx context.Context, cmd *cobra.Command) (*stack.Deployer, error) {
	ids, err := e.identifiers(ctx, cmd)
	if err != nil {
		return nil, err
	}
	concurrency, _ := cmd.Flags().GetUint("concurrency")
	return &stack.Deployer{
		Config:      e.stack,
		Cloud:       e.cloud,
		Concurrency: concurrency,
		Identifiers: ids,
		Logger:      e.logger,
	}, nil
}
