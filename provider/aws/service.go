// Package aws implements the cloud services on Amazon Web Services.
package aws

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/awserr"
	"github.com/aws/aws-sdk-go-v2/aws/endpoints"
	"github.com/aws/aws-sdk-go-v2/aws/external"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/acmiface"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/ecriface"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/ecsiface"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/elasticloadbalancingv2iface"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/iamiface"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/route53iface"
	"github.com/cenkalti/backoff"
	"github.com/diversitus/infra/provider"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Cloud implements every cloud service with the AWS API.
//
// The API clients are created from Config. A client may be set explicitly
// before first use, in which case it is used instead.
type Cloud struct {
	Config aws.Config

	// MaxElapsedTime limits how long a single API operation is retried. If
	// not set, DefaultMaxElapsedTime is used.
	MaxElapsedTime time.Duration

	Logger *zap.Logger

	ECR      ecriface.ClientAPI
	DynamoDB dynamodbiface.ClientAPI
	IAM      iamiface.ClientAPI
	Route53  route53iface.ClientAPI
	ACM      acmiface.ClientAPI
	EC2      ec2iface.ClientAPI
	ELB      elasticloadbalancingv2iface.ClientAPI
	ECS      ecsiface.ClientAPI
}

// DefaultMaxElapsedTime is the default time an API operation is retried for.
var DefaultMaxElapsedTime = 2 * time.Minute

// New creates a cloud from the default AWS configuration, loaded from the
// environment and shared configuration files. If region is empty, the
// default region is used.
func New(region string) (*Cloud, error) {
	cfg, err := external.LoadDefaultAWSConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	if region == "" {
		region = defaultRegion()
	}
	cfg.Region = region
	return NewWithConfig(cfg), nil
}

// NewWithConfig creates a cloud with the given configuration.
func NewWithConfig(cfg aws.Config) *Cloud {
	return &Cloud{
		Config:   cfg,
		ECR:      ecr.New(cfg),
		DynamoDB: dynamodb.New(cfg),
		IAM:      iam.New(cfg),
		Route53:  route53.New(cfg),
		ACM:      acm.New(cfg),
		EC2:      ec2.New(cfg),
		ELB:      elasticloadbalancingv2.New(cfg),
		ECS:      ecs.New(cfg),
	}
}

// Provider returns a provider cloud backed by c. Images are built with the
// given builder.
func (c *Cloud) Provider(images provider.ImageBuilder) *provider.Cloud {
	return &provider.Cloud{
		Region:       c.Config.Region,
		Registry:     c,
		Images:       images,
		Tables:       c,
		Identity:     c,
		DNS:          c,
		Certificates: c,
		Compute:      c,
	}
}

func (c *Cloud) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// retry calls fn until it succeeds, returns a permanent error or the retry
// budget is exhausted. Errors should be passed through handlePutError.
func (c *Cloud) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = DefaultMaxElapsedTime
	if c.MaxElapsedTime > 0 {
		b.MaxElapsedTime = c.MaxElapsedTime
	}
	notify := func(err error, next time.Duration) {
		c.logger().Debug("Retry", zap.String("op", op), zap.Error(err), zap.Duration("next", next))
	}
	err := backoff.RetryNotify(fn, backoff.WithContext(b, ctx), notify)
	if err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

func handlePutError(err error) error {
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.RequestFailure); ok {
		if aerr.StatusCode() == http.StatusTooManyRequests {
			return err
		}
		if isThrottle(aerr) {
			return err
		}
		if aerr.StatusCode() >= 400 && aerr.StatusCode() < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	return err
}

func isThrottle(err awserr.Error) bool {
	switch err.Code() {
	case "Throttling", "ThrottlingException", "TooManyRequestsException", "RequestLimitExceeded", "PriorRequestNotComplete":
		return true
	}
	return false
}

// isCode returns true if err is an AWS error with the given code.
func isCode(err error, code string) bool {
	if aerr, ok := errors.Cause(err).(awserr.Error); ok {
		return aerr.Code() == code
	}
	return false
}

// defaultRegion determines the default region to use based on:
//
//  - From AWS_DEFAULT_REGION environment variable.
//  - From region in ~/.aws/credentials.
//  - If neither is set, us-east-1 is used.
func defaultRegion() string {
	const fallback = endpoints.UsEast1RegionID
	var cfgs external.Configs
	cfgs, err := cfgs.AppendFromLoaders(external.DefaultConfigLoaders)
	if err != nil {
		return fallback
	}
	cfg, err := cfgs.ResolveAWSConfig([]external.AWSConfigResolver{
		external.ResolveRegion,
	})
	if err != nil {
		return fallback
	}
	if cfg.Region == "" {
		// No AWS config available
		return fallback
	}
	return cfg.Region
}
