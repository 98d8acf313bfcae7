package stack

import (
	"fmt"

	"github.com/diversitus/infra/config"
	"github.com/diversitus/infra/resource"
	"github.com/diversitus/infra/resource/graph"
)

// Resource names.
const (
	Repository            = "repository"
	Image                 = "image"
	JobsTable             = "jobs-table"
	CompaniesTable        = "companies-table"
	UsersTable            = "users-table"
	TaskRole              = "task-role"
	ExecutionRole         = "execution-role"
	Zone                  = "zone"
	Certificate           = "certificate"
	CertificateValidation = "certificate-validation"
	LoadBalancer          = "load-balancer"
	Service               = "service"
	AliasRecord           = "alias-record"
)

// ExecutionPolicyARN is the managed policy allowing tasks to pull images and
// write logs.
const ExecutionPolicyARN = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"

// TableActions are the actions the service is allowed to perform on the
// tables.
var TableActions = []string{
	"dynamodb:Scan",
	"dynamodb:Query",
	"dynamodb:GetItem",
	"dynamodb:BatchGetItem",
	"dynamodb:PutItem",
}

var tags = map[string]string{"Project": "Diversitus"}

// Resources returns the resource declarations for a stack.
func Resources(cfg *config.Stack) []graph.Resource {
	p := cfg.Project.Name
	app := cfg.App
	if app == nil {
		app = &config.App{}
	}
	name := func(suffix string) string { return fmt.Sprintf("%s-%s", p, suffix) }

	env := map[string]graph.Expression{
		"JOBS_TABLE_NAME":      graph.Ref(JobsTable, "name"),
		"COMPANIES_TABLE_NAME": graph.Ref(CompaniesTable, "name"),
		"USERS_TABLE_NAME":     graph.Ref(UsersTable, "name"),
		"AWS_REGION":           graph.String(cfg.Project.Region),
	}
	for k, v := range app.Environment {
		if _, ok := env[k]; !ok {
			env[k] = graph.String(v)
		}
	}

	service := inputs{
		"cluster":            graph.String(name("cluster")),
		"name":               graph.String(name("service")),
		"container_name":     graph.String("app"),
		"image":              graph.Ref(Image, "uri"),
		"environment":        graph.Map(env),
		"task_role_arn":      graph.Ref(TaskRole, "role_arn"),
		"execution_role_arn": graph.Ref(ExecutionRole, "role_arn"),
		"target_group_arn":   graph.Ref(LoadBalancer, "target_group_arn"),
		"subnets":            graph.Ref(LoadBalancer, "subnets"),
		"security_groups":    graph.Ref(LoadBalancer, "security_groups"),
		"assign_public_ip":   graph.Bool(true),
	}.
		with("cpu", app.CPU).
		with("memory", app.Memory).
		with("port", app.Port).
		with("desired_count", app.DesiredCount)

	return []graph.Resource{
		graph.Declare(resource.KindRegistry, Repository, graph.Inputs{
			"name": graph.String(name("repo")),
		}),
		graph.Declare(resource.KindImage, Image, graph.Inputs{
			"repository_url": graph.Ref(Repository, "url"),
			"context":        graph.String(app.Context),
			"dockerfile":     graph.String(app.Dockerfile),
			"platform":       graph.String(app.Platform),
			"tag":            graph.String(app.Tag),
		}),
		graph.Declare(resource.KindTable, JobsTable, graph.Inputs{
			"name":         graph.String(TableName(cfg, "jobs")),
			"hash_key":     graph.String("id"),
			"billing_mode": graph.String("PAY_PER_REQUEST"),
			"tags":         graph.StringMap(tags),
		}),
		graph.Declare(resource.KindTable, CompaniesTable, graph.Inputs{
			"name":         graph.String(TableName(cfg, "companies")),
			"hash_key":     graph.String("id"),
			"billing_mode": graph.String("PAY_PER_REQUEST"),
			"tags":         graph.StringMap(tags),
		}),
		graph.Declare(resource.KindTable, UsersTable, graph.Inputs{
			"name":         graph.String(TableName(cfg, "users")),
			"hash_key":     graph.String("id"),
			"attributes":   graph.StringMap(map[string]string{"id": "S", "email": "S"}),
			"indexes":      graph.StringMap(map[string]string{"EmailIndex": "email"}),
			"billing_mode": graph.String("PAY_PER_REQUEST"),
			"tags":         graph.StringMap(tags),
		}),
		graph.Declare(resource.KindPolicy, TaskRole, graph.Inputs{
			"role_name":      graph.String(name("task")),
			"assume_service": graph.String("ecs-tasks.amazonaws.com"),
			"policy_name":    graph.String(name("db-access")),
			"actions":        graph.Strings(TableActions...),
			"resources": graph.List(
				graph.Ref(JobsTable, "arn"),
				graph.Ref(CompaniesTable, "arn"),
				graph.Ref(UsersTable, "arn"),
				graph.MustTemplate("${users-table.arn}/index/EmailIndex"),
			),
		}),
		graph.Declare(resource.KindPolicy, ExecutionRole, graph.Inputs{
			"role_name":        graph.String(name("execution")),
			"assume_service":   graph.String("ecs-tasks.amazonaws.com"),
			"managed_policies": graph.Strings(ExecutionPolicyARN),
		}),
		graph.Declare(resource.KindZone, Zone, graph.Inputs{
			"domain": graph.String(cfg.Project.RootDomain),
		}),
		graph.Declare(resource.KindCertificate, Certificate, graph.Inputs{
			"domain": graph.String(cfg.Project.Domain),
			"method": graph.String("DNS"),
		}),
		graph.Declare(resource.KindValidationRecord, CertificateValidation, graph.Inputs{
			"zone_id":         graph.Ref(Zone, "id"),
			"certificate_arn": graph.Ref(Certificate, "arn"),
			"record_name":     graph.Ref(Certificate, "record_name"),
			"record_type":     graph.Ref(Certificate, "record_type"),
			"record_value":    graph.Ref(Certificate, "record_value"),
			"ttl":             graph.Number(300),
		}),
		graph.Declare(resource.KindLoadBalancer, LoadBalancer, inputs{
			"name":            graph.String(name("lb")),
			"certificate_arn": graph.Ref(CertificateValidation, "certificate_arn"),
			"listener_port":   graph.Number(443),
		}.with("target_port", app.Port).Inputs()),
		graph.Declare(resource.KindService, Service, service.Inputs()),
		graph.Declare(resource.KindDNSRecord, AliasRecord, graph.Inputs{
			"zone_id":                graph.Ref(Zone, "id"),
			"name":                   graph.String(cfg.Project.Domain),
			"type":                   graph.String("A"),
			"alias_name":             graph.Ref(LoadBalancer, "dns_name"),
			"alias_zone_id":          graph.Ref(LoadBalancer, "zone_id"),
			"evaluate_target_health": graph.Bool(true),
		}),
	}
}

type inputs graph.Inputs

// with sets a numeric input. Zero values are left unset so the handler
// default applies.
func (in inputs) with(name string, n int64) inputs {
	if n != 0 {
		in[name] = graph.Number(n)
	}
	return in
}

func (in inputs) Inputs() graph.Inputs { return graph.Inputs(in) }
