package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/pkg/errors"
)

// network is the default VPC of the account.
type network struct {
	VPC            string
	Subnets        []string
	SecurityGroups []string
}

// defaultNetwork looks up the default VPC with its subnets and default
// security group.
func (c *Cloud) defaultNetwork(ctx context.Context) (*network, error) {
	net := &network{}

	err := c.retry(ctx, "describe vpcs", func() error {
		resp, err := c.EC2.DescribeVpcsRequest(&ec2.DescribeVpcsInput{
			Filters: []ec2.Filter{{Name: aws.String("isDefault"), Values: []string{"true"}}},
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		if len(resp.Vpcs) > 0 {
			net.VPC = aws.StringValue(resp.Vpcs[0].VpcId)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if net.VPC == "" {
		return nil, errors.New("no default vpc")
	}
	vpcFilter := ec2.Filter{Name: aws.String("vpc-id"), Values: []string{net.VPC}}

	err = c.retry(ctx, "describe subnets", func() error {
		resp, err := c.EC2.DescribeSubnetsRequest(&ec2.DescribeSubnetsInput{
			Filters: []ec2.Filter{vpcFilter},
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		net.Subnets = net.Subnets[:0]
		for _, s := range resp.Subnets {
			net.Subnets = append(net.Subnets, aws.StringValue(s.SubnetId))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = c.retry(ctx, "describe security groups", func() error {
		resp, err := c.EC2.DescribeSecurityGroupsRequest(&ec2.DescribeSecurityGroupsInput{
			Filters: []ec2.Filter{
				vpcFilter,
				{Name: aws.String("group-name"), Values: []string{"default"}},
			},
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		net.SecurityGroups = net.SecurityGroups[:0]
		for _, g := range resp.SecurityGroups {
			net.SecurityGroups = append(net.SecurityGroups, aws.StringValue(g.GroupId))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return net, nil
}
