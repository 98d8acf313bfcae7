package aws

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/diversitus/infra/provider"
	"go.uber.org/zap"
)

// EnsureService registers a task definition revision for the service and
// creates or updates a Fargate service running it. The cluster is created if
// it does not exist.
func (c *Cloud) EnsureService(ctx context.Context, spec provider.ServiceSpec) (*provider.ServiceInfo, error) {
	logger := c.logger().With(zap.String("service", spec.Name))

	var clusterARN string
	err := c.retry(ctx, "create cluster", func() error {
		resp, err := c.ECS.CreateClusterRequest(&ecs.CreateClusterInput{
			ClusterName: aws.String(spec.Cluster),
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		clusterARN = aws.StringValue(resp.Cluster.ClusterArn)
		return nil
	})
	if err != nil {
		return nil, err
	}

	taskDef, err := c.registerTask(ctx, spec.Task)
	if err != nil {
		return nil, err
	}

	existing, err := c.describeService(ctx, spec.Cluster, spec.Name)
	if err != nil {
		return nil, err
	}

	var svc *ecs.Service
	if existing == nil {
		logger.Info("Create service")
		input := &ecs.CreateServiceInput{
			Cluster:              aws.String(spec.Cluster),
			ServiceName:          aws.String(spec.Name),
			TaskDefinition:       aws.String(taskDef),
			DesiredCount:         aws.Int64(spec.DesiredCount),
			LaunchType:           ecs.LaunchTypeFargate,
			NetworkConfiguration: networkConfiguration(spec),
		}
		if spec.TargetGroupARN != "" {
			input.LoadBalancers = []ecs.LoadBalancer{{
				TargetGroupArn: aws.String(spec.TargetGroupARN),
				ContainerName:  aws.String(spec.Task.ContainerName),
				ContainerPort:  aws.Int64(spec.Task.Port),
			}}
		}
		err := c.retry(ctx, "create service", func() error {
			resp, err := c.ECS.CreateServiceRequest(input).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			svc = resp.Service
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		logger.Info("Update service", zap.String("task_definition", taskDef))
		input := &ecs.UpdateServiceInput{
			Cluster:              aws.String(spec.Cluster),
			Service:              aws.String(spec.Name),
			TaskDefinition:       aws.String(taskDef),
			DesiredCount:         aws.Int64(spec.DesiredCount),
			NetworkConfiguration: networkConfiguration(spec),
		}
		err := c.retry(ctx, "update service", func() error {
			resp, err := c.ECS.UpdateServiceRequest(input).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			svc = resp.Service
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return &provider.ServiceInfo{
		ARN:               aws.StringValue(svc.ServiceArn),
		ClusterARN:        clusterARN,
		TaskDefinitionARN: taskDef,
	}, nil
}

func networkConfiguration(spec provider.ServiceSpec) *ecs.NetworkConfiguration {
	assign := ecs.AssignPublicIpDisabled
	if spec.AssignPublicIP {
		assign = ecs.AssignPublicIpEnabled
	}
	return &ecs.NetworkConfiguration{
		AwsvpcConfiguration: &ecs.AwsVpcConfiguration{
			Subnets:        spec.Subnets,
			SecurityGroups: spec.SecurityGroups,
			AssignPublicIp: assign,
		},
	}
}

// registerTask registers a task definition and returns its ARN. Registering
// an identical definition creates a new revision, which the service update
// then rolls out.
func (c *Cloud) registerTask(ctx context.Context, spec provider.TaskSpec) (string, error) {
	def := ecs.ContainerDefinition{
		Name:      aws.String(spec.ContainerName),
		Image:     aws.String(spec.Image),
		Essential: aws.Bool(true),
		PortMappings: []ecs.PortMapping{{
			ContainerPort: aws.Int64(spec.Port),
			Protocol:      ecs.TransportProtocolTcp,
		}},
	}
	for _, k := range sortedKeys(spec.Environment) {
		def.Environment = append(def.Environment, ecs.KeyValuePair{
			Name:  aws.String(k),
			Value: aws.String(spec.Environment[k]),
		})
	}
	input := &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(spec.Family),
		Cpu:                     aws.String(strconv.FormatInt(spec.CPU, 10)),
		Memory:                  aws.String(strconv.FormatInt(spec.Memory, 10)),
		NetworkMode:             ecs.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecs.Compatibility{ecs.CompatibilityFargate},
		ContainerDefinitions:    []ecs.ContainerDefinition{def},
	}
	if spec.TaskRoleARN != "" {
		input.TaskRoleArn = aws.String(spec.TaskRoleARN)
	}
	if spec.ExecutionRoleARN != "" {
		input.ExecutionRoleArn = aws.String(spec.ExecutionRoleARN)
	}

	var arn string
	err := c.retry(ctx, "register task definition", func() error {
		resp, err := c.ECS.RegisterTaskDefinitionRequest(input).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		arn = aws.StringValue(resp.TaskDefinition.TaskDefinitionArn)
		return nil
	})
	return arn, err
}

// describeService returns an active service, or nil if the service does not
// exist or has been deleted.
func (c *Cloud) describeService(ctx context.Context, cluster, name string) (*ecs.Service, error) {
	var svc *ecs.Service
	err := c.retry(ctx, "describe services", func() error {
		resp, err := c.ECS.DescribeServicesRequest(&ecs.DescribeServicesInput{
			Cluster:  aws.String(cluster),
			Services: []string{name},
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		for i, s := range resp.Services {
			if aws.StringValue(s.Status) == "ACTIVE" {
				svc = &resp.Services[i]
			}
		}
		return nil
	})
	return svc, err
}
