package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/diversitus/infra/provider"
	"go.uber.org/zap"
)

// EnsureRole creates an IAM role, or updates the trust policy of an existing
// role. Managed policies are attached to the role; policies attached outside
// of the spec are left in place.
func (c *Cloud) EnsureRole(ctx context.Context, spec provider.RoleSpec) (*provider.RoleInfo, error) {
	var role *iam.Role
	err := c.retry(ctx, "get role", func() error {
		resp, err := c.IAM.GetRoleRequest(&iam.GetRoleInput{
			RoleName: aws.String(spec.Name),
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		role = resp.Role
		return nil
	})
	if err != nil && !isCode(err, iam.ErrCodeNoSuchEntityException) {
		return nil, err
	}

	if role == nil {
		c.logger().Info("Create role", zap.String("role", spec.Name))
		input := &iam.CreateRoleInput{
			RoleName:                 aws.String(spec.Name),
			AssumeRolePolicyDocument: aws.String(spec.AssumeRolePolicy),
		}
		if err := input.Validate(); err != nil {
			return nil, err
		}
		err := c.retry(ctx, "create role", func() error {
			resp, err := c.IAM.CreateRoleRequest(input).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			role = resp.Role
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		err := c.retry(ctx, "update assume role policy", func() error {
			_, err := c.IAM.UpdateAssumeRolePolicyRequest(&iam.UpdateAssumeRolePolicyInput{
				RoleName:       aws.String(spec.Name),
				PolicyDocument: aws.String(spec.AssumeRolePolicy),
			}).Send(ctx)
			return handlePutError(err)
		})
		if err != nil {
			return nil, err
		}
	}

	for _, arn := range spec.ManagedPolicies {
		input := &iam.AttachRolePolicyInput{
			RoleName:  aws.String(spec.Name),
			PolicyArn: aws.String(arn),
		}
		err := c.retry(ctx, "attach role policy", func() error {
			_, err := c.IAM.AttachRolePolicyRequest(input).Send(ctx)
			return handlePutError(err)
		})
		if err != nil {
			return nil, err
		}
	}

	return &provider.RoleInfo{
		ID:   aws.StringValue(role.RoleId),
		ARN:  aws.StringValue(role.Arn),
		Name: aws.StringValue(role.RoleName),
	}, nil
}

// AttachInlinePolicy creates or replaces an inline policy on a role.
func (c *Cloud) AttachInlinePolicy(ctx context.Context, roleName, policyName, document string) error {
	input := &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(document),
	}
	if err := input.Validate(); err != nil {
		return err
	}
	return c.retry(ctx, "put role policy", func() error {
		_, err := c.IAM.PutRolePolicyRequest(input).Send(ctx)
		return handlePutError(err)
	})
}
