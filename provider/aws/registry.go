package aws

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/diversitus/infra/provider"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EnsureRepository creates an ECR repository if it does not exist.
func (c *Cloud) EnsureRepository(ctx context.Context, name string) (*provider.RepositoryInfo, error) {
	var repo *ecr.Repository
	err := c.retry(ctx, "describe repository", func() error {
		resp, err := c.ECR.DescribeRepositoriesRequest(&ecr.DescribeRepositoriesInput{
			RepositoryNames: []string{name},
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		if len(resp.Repositories) > 0 {
			repo = &resp.Repositories[0]
		}
		return nil
	})
	if err != nil && !isCode(err, ecr.ErrCodeRepositoryNotFoundException) {
		return nil, err
	}

	if repo == nil {
		c.logger().Info("Create repository", zap.String("name", name))
		input := &ecr.CreateRepositoryInput{
			RepositoryName: aws.String(name),
		}
		err := c.retry(ctx, "create repository", func() error {
			resp, err := c.ECR.CreateRepositoryRequest(input).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			repo = resp.Repository
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return &provider.RepositoryInfo{
		Name: aws.StringValue(repo.RepositoryName),
		URL:  aws.StringValue(repo.RepositoryUri),
		ARN:  aws.StringValue(repo.RepositoryArn),
	}, nil
}

// RegistryCredentials returns temporary credentials for pushing to the
// account's ECR registry.
func (c *Cloud) RegistryCredentials(ctx context.Context) (*provider.RegistryCredentials, error) {
	var data ecr.AuthorizationData
	err := c.retry(ctx, "get authorization token", func() error {
		resp, err := c.ECR.GetAuthorizationTokenRequest(&ecr.GetAuthorizationTokenInput{}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		if len(resp.AuthorizationData) == 0 {
			return errors.New("no authorization data in response")
		}
		data = resp.AuthorizationData[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(aws.StringValue(data.AuthorizationToken))
	if err != nil {
		return nil, errors.Wrap(err, "decode authorization token")
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return nil, errors.New("malformed authorization token")
	}
	return &provider.RegistryCredentials{
		Server:   aws.StringValue(data.ProxyEndpoint),
		Username: parts[0],
		Password: parts[1],
	}, nil
}
