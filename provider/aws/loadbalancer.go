package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/diversitus/infra/provider"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EnsureLoadBalancer creates an internet facing application load balancer in
// the default VPC, with a target group for the service and a listener
// forwarding to it. Existing resources with the same names are updated.
func (c *Cloud) EnsureLoadBalancer(ctx context.Context, spec provider.LoadBalancerSpec) (*provider.LoadBalancerInfo, error) {
	logger := c.logger().With(zap.String("load_balancer", spec.Name))

	net, err := c.defaultNetwork(ctx)
	if err != nil {
		return nil, err
	}

	lb, err := c.describeLoadBalancer(ctx, spec.Name)
	if err != nil && !isCode(err, elb.ErrCodeLoadBalancerNotFoundException) {
		return nil, err
	}
	if lb == nil {
		logger.Info("Create load balancer")
		input := &elb.CreateLoadBalancerInput{
			Name:           aws.String(spec.Name),
			Subnets:        net.Subnets,
			SecurityGroups: net.SecurityGroups,
			Scheme:         elb.LoadBalancerSchemeEnumInternetFacing,
			Type:           elb.LoadBalancerTypeEnumApplication,
		}
		err := c.retry(ctx, "create load balancer", func() error {
			resp, err := c.ELB.CreateLoadBalancerRequest(input).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			if len(resp.LoadBalancers) == 0 {
				return errors.New("no load balancer in response")
			}
			lb = &resp.LoadBalancers[0]
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	// Creating a target group with identical settings returns the existing
	// group.
	var tgARN string
	tgInput := &elb.CreateTargetGroupInput{
		Name:            aws.String(spec.Name),
		Port:            aws.Int64(spec.TargetGroup.Port),
		Protocol:        elb.ProtocolEnum(spec.TargetGroup.Protocol),
		VpcId:           aws.String(net.VPC),
		TargetType:      elb.TargetTypeEnumIp,
		HealthCheckPath: aws.String(spec.TargetGroup.HealthCheckPath),
	}
	err = c.retry(ctx, "create target group", func() error {
		resp, err := c.ELB.CreateTargetGroupRequest(tgInput).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		if len(resp.TargetGroups) == 0 {
			return errors.New("no target group in response")
		}
		tgARN = aws.StringValue(resp.TargetGroups[0].TargetGroupArn)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.ensureListener(ctx, aws.StringValue(lb.LoadBalancerArn), tgARN, spec.Listener); err != nil {
		return nil, err
	}

	return &provider.LoadBalancerInfo{
		ARN:            aws.StringValue(lb.LoadBalancerArn),
		DNSName:        aws.StringValue(lb.DNSName),
		ZoneID:         aws.StringValue(lb.CanonicalHostedZoneId),
		TargetGroupARN: tgARN,
		Subnets:        net.Subnets,
		SecurityGroups: net.SecurityGroups,
	}, nil
}

func (c *Cloud) describeLoadBalancer(ctx context.Context, name string) (*elb.LoadBalancer, error) {
	var lb *elb.LoadBalancer
	err := c.retry(ctx, "describe load balancers", func() error {
		resp, err := c.ELB.DescribeLoadBalancersRequest(&elb.DescribeLoadBalancersInput{
			Names: []string{name},
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		if len(resp.LoadBalancers) > 0 {
			lb = &resp.LoadBalancers[0]
		}
		return nil
	})
	return lb, err
}

func (c *Cloud) ensureListener(ctx context.Context, lbARN, tgARN string, spec provider.ListenerSpec) error {
	var existing string
	err := c.retry(ctx, "describe listeners", func() error {
		resp, err := c.ELB.DescribeListenersRequest(&elb.DescribeListenersInput{
			LoadBalancerArn: aws.String(lbARN),
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		for _, l := range resp.Listeners {
			if aws.Int64Value(l.Port) == spec.Port {
				existing = aws.StringValue(l.ListenerArn)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	actions := []elb.Action{{
		Type:           elb.ActionTypeEnumForward,
		TargetGroupArn: aws.String(tgARN),
	}}
	var certs []elb.Certificate
	if spec.CertificateARN != "" {
		certs = []elb.Certificate{{CertificateArn: aws.String(spec.CertificateARN)}}
	}

	if existing != "" {
		return c.retry(ctx, "modify listener", func() error {
			_, err := c.ELB.ModifyListenerRequest(&elb.ModifyListenerInput{
				ListenerArn:    aws.String(existing),
				Port:           aws.Int64(spec.Port),
				Protocol:       elb.ProtocolEnum(spec.Protocol),
				Certificates:   certs,
				DefaultActions: actions,
			}).Send(ctx)
			return handlePutError(err)
		})
	}
	return c.retry(ctx, "create listener", func() error {
		_, err := c.ELB.CreateListenerRequest(&elb.CreateListenerInput{
			LoadBalancerArn: aws.String(lbARN),
			Port:            aws.Int64(spec.Port),
			Protocol:        elb.ProtocolEnum(spec.Protocol),
			Certificates:    certs,
			DefaultActions:  actions,
		}).Send(ctx)
		return handlePutError(err)
	})
}
