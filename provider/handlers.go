package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/diversitus/infra/resource"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

// Defaults applied to optional inputs.
const (
	DefaultPlatform     = "linux/amd64"
	DefaultTag          = "latest"
	DefaultRecordTTL    = 300
	DefaultListenerPort = 443
	DefaultTargetPort   = 8080
	DefaultCPU          = 256
	DefaultMemory       = 512
	DefaultDesiredCount = 1
	DefaultAssumeRole   = "ecs-tasks.amazonaws.com"
)

// Handlers returns a registry with a handler for every resource kind, backed
// by the services in cloud.
func Handlers(cloud *Cloud) *resource.Registry {
	reg := &resource.Registry{}
	reg.Register(resource.KindRegistry, resource.HandlerFunc(cloud.registry))
	reg.Register(resource.KindImage, resource.HandlerFunc(cloud.image))
	reg.Register(resource.KindTable, resource.HandlerFunc(cloud.table))
	reg.Register(resource.KindPolicy, resource.HandlerFunc(cloud.policy))
	reg.Register(resource.KindZone, resource.HandlerFunc(cloud.zone))
	reg.Register(resource.KindCertificate, resource.HandlerFunc(cloud.certificate))
	reg.Register(resource.KindValidationRecord, resource.HandlerFunc(cloud.validationRecord))
	reg.Register(resource.KindLoadBalancer, resource.HandlerFunc(cloud.loadBalancer))
	reg.Register(resource.KindService, resource.HandlerFunc(cloud.service))
	reg.Register(resource.KindDNSRecord, resource.HandlerFunc(cloud.dnsRecord))
	return reg
}

// inputs reads typed values from the request inputs. The first error is
// retained and all subsequent reads become no-ops.
type inputs struct {
	attrs resource.Attrs
	err   error
}

func (in *inputs) string(name string) string {
	if in.err != nil {
		return ""
	}
	v, err := in.attrs.String(name)
	in.err = err
	return v
}

func (in *inputs) optionalString(name, def string) string {
	if in.err != nil {
		return ""
	}
	v, err := in.attrs.OptionalString(name, def)
	in.err = err
	return v
}

func (in *inputs) int(name string, def int64) int64 {
	if in.err != nil {
		return 0
	}
	v, err := in.attrs.OptionalInt(name, def)
	in.err = err
	return v
}

func (in *inputs) bool(name string, def bool) bool {
	if in.err != nil {
		return false
	}
	v, err := in.attrs.Bool(name, def)
	in.err = err
	return v
}

func (in *inputs) strings(name string) []string {
	if in.err != nil {
		return nil
	}
	v, err := in.attrs.Strings(name)
	in.err = err
	return v
}

func (in *inputs) stringMap(name string) map[string]string {
	if in.err != nil {
		return nil
	}
	v, err := in.attrs.StringMap(name)
	in.err = err
	return v
}

func (c *Cloud) registry(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	name := in.optionalString("name", req.Spec.Name)
	if in.err != nil {
		return nil, in.err
	}
	repo, err := c.Registry.EnsureRepository(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "ensure repository")
	}
	return &resource.Response{Outputs: resource.Attrs{
		"name": cty.StringVal(repo.Name),
		"url":  cty.StringVal(repo.URL),
		"arn":  cty.StringVal(repo.ARN),
	}}, nil
}

func (c *Cloud) image(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	spec := ImageSpec{
		Context:       in.string("context"),
		Dockerfile:    in.optionalString("dockerfile", "Dockerfile"),
		RepositoryURL: in.string("repository_url"),
		Platform:      in.optionalString("platform", DefaultPlatform),
		Tag:           in.optionalString("tag", DefaultTag),
	}
	if in.err != nil {
		return nil, in.err
	}
	img, err := c.Images.BuildAndPush(ctx, spec)
	if err != nil {
		return nil, errors.Wrap(err, "build image")
	}
	return &resource.Response{Outputs: resource.Attrs{
		"uri":    cty.StringVal(img.URI),
		"digest": cty.StringVal(img.Digest),
	}}, nil
}

func (c *Cloud) table(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	spec := TableSpec{
		Name:        in.optionalString("name", req.Spec.Name),
		HashKey:     in.string("hash_key"),
		Attributes:  in.stringMap("attributes"),
		BillingMode: in.optionalString("billing_mode", BillingPayPerRequest),
		Tags:        in.stringMap("tags"),
	}
	indexes := in.stringMap("indexes")
	if in.err != nil {
		return nil, in.err
	}
	if spec.Attributes == nil {
		spec.Attributes = map[string]string{}
	}
	if _, ok := spec.Attributes[spec.HashKey]; !ok {
		spec.Attributes[spec.HashKey] = AttributeString
	}
	for name, key := range indexes {
		if _, ok := spec.Attributes[key]; !ok {
			return nil, errors.Errorf("index %s: hash key %q is not a declared attribute", name, key)
		}
		spec.Indexes = append(spec.Indexes, IndexSpec{Name: name, HashKey: key})
	}
	sort.Slice(spec.Indexes, func(i, j int) bool { return spec.Indexes[i].Name < spec.Indexes[j].Name })

	tbl, err := c.Tables.EnsureTable(ctx, spec)
	if err != nil {
		return nil, errors.Wrap(err, "ensure table")
	}
	return &resource.Response{Outputs: resource.Attrs{
		"name": cty.StringVal(tbl.Name),
		"arn":  cty.StringVal(tbl.ARN),
	}}, nil
}

func (c *Cloud) policy(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	roleName := in.optionalString("role_name", req.Spec.Name)
	service := in.optionalString("assume_service", DefaultAssumeRole)
	policyName := in.optionalString("policy_name", "")
	actions := in.strings("actions")
	resources := in.strings("resources")
	managed := in.strings("managed_policies")
	if in.err != nil {
		return nil, in.err
	}
	if len(actions) > 0 && len(resources) == 0 {
		return nil, errors.New("actions require at least one resource")
	}

	role, err := c.Identity.EnsureRole(ctx, RoleSpec{
		Name:             roleName,
		AssumeRolePolicy: AssumeRolePolicy(service),
		ManagedPolicies:  managed,
	})
	if err != nil {
		return nil, errors.Wrap(err, "ensure role")
	}

	if len(actions) > 0 {
		if policyName == "" {
			policyName = roleName + "-policy"
		}
		doc, err := PolicyDocument{
			Statements: []PolicyStatement{{
				Effect:    "Allow",
				Actions:   actions,
				Resources: resources,
			}},
		}.JSON()
		if err != nil {
			return nil, err
		}
		if err := c.Identity.AttachInlinePolicy(ctx, role.Name, policyName, doc); err != nil {
			return nil, errors.Wrap(err, "attach policy")
		}
	}

	return &resource.Response{Outputs: resource.Attrs{
		"arn":       cty.StringVal(role.ARN),
		"role_arn":  cty.StringVal(role.ARN),
		"role_name": cty.StringVal(role.Name),
		"role_id":   cty.StringVal(role.ID),
	}}, nil
}

func (c *Cloud) zone(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	domain := in.string("domain")
	if in.err != nil {
		return nil, in.err
	}
	zone, err := c.DNS.EnsureZone(ctx, domain)
	if err != nil {
		return nil, errors.Wrap(err, "ensure zone")
	}
	return &resource.Response{Outputs: resource.Attrs{
		"id":           cty.StringVal(zone.ID),
		"name":         cty.StringVal(zone.Name),
		"name_servers": resource.StringList(zone.NameServers),
	}}, nil
}

func (c *Cloud) certificate(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	domain := in.string("domain")
	method := in.optionalString("method", ValidationDNS)
	if in.err != nil {
		return nil, in.err
	}
	cert, err := c.Certificates.RequestCertificate(ctx, domain, method)
	if err != nil {
		return nil, errors.Wrap(err, "request certificate")
	}
	if len(cert.Challenges) == 0 {
		return nil, errors.Errorf("certificate %s has no validation challenge", cert.ARN)
	}
	ch := cert.Challenges[0]
	return &resource.Response{Outputs: resource.Attrs{
		"arn":          cty.StringVal(cert.ARN),
		"record_name":  cty.StringVal(ch.RecordName),
		"record_type":  cty.StringVal(ch.RecordType),
		"record_value": cty.StringVal(ch.RecordValue),
	}}, nil
}

// validationRecord publishes the validation challenge of a certificate in its
// zone and waits for the authority to confirm it. The record is published by
// the validation step so that it is only written once.
func (c *Cloud) validationRecord(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	zoneID := in.string("zone_id")
	arn := in.string("certificate_arn")
	ch := resource.Challenge{
		RecordName:  in.string("record_name"),
		RecordType:  in.string("record_type"),
		RecordValue: in.string("record_value"),
	}
	ttl := in.int("ttl", DefaultRecordTTL)
	if in.err != nil {
		return nil, in.err
	}
	ch.ExpectedFQDN = fqdn(ch.RecordName)

	publish := func(ctx context.Context, ch resource.Challenge) error {
		_, err := c.DNS.UpsertRecord(ctx, RecordSpec{
			ZoneID: zoneID,
			Name:   ch.RecordName,
			Type:   ch.RecordType,
			Values: []string{ch.RecordValue},
			TTL:    ttl,
		})
		return err
	}
	poll := func(ctx context.Context) (resource.ValidationStatus, error) {
		return c.Certificates.ValidationStatus(ctx, arn)
	}

	return &resource.Response{
		Outputs: resource.Attrs{
			"certificate_arn": cty.StringVal(arn),
		},
		Validation: &resource.Validation{
			Challenge: ch,
			Publish:   publish,
			Poll:      poll,
		},
	}, nil
}

func (c *Cloud) loadBalancer(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	spec := LoadBalancerSpec{
		Name: in.optionalString("name", req.Spec.Name),
		Listener: ListenerSpec{
			Port:           in.int("listener_port", DefaultListenerPort),
			Protocol:       "HTTPS",
			CertificateARN: in.string("certificate_arn"),
		},
		TargetGroup: TargetGroupSpec{
			Port:            in.int("target_port", DefaultTargetPort),
			Protocol:        "HTTP",
			HealthCheckPath: in.optionalString("health_check_path", "/"),
		},
	}
	if in.err != nil {
		return nil, in.err
	}
	lb, err := c.Compute.EnsureLoadBalancer(ctx, spec)
	if err != nil {
		return nil, errors.Wrap(err, "ensure load balancer")
	}
	return &resource.Response{Outputs: resource.Attrs{
		"arn":              cty.StringVal(lb.ARN),
		"dns_name":         cty.StringVal(lb.DNSName),
		"zone_id":          cty.StringVal(lb.ZoneID),
		"target_group_arn": cty.StringVal(lb.TargetGroupARN),
		"subnets":          resource.StringList(lb.Subnets),
		"security_groups":  resource.StringList(lb.SecurityGroups),
	}}, nil
}

func (c *Cloud) service(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	name := in.optionalString("name", req.Spec.Name)
	spec := ServiceSpec{
		Cluster: in.string("cluster"),
		Name:    name,
		Task: TaskSpec{
			Family:           name,
			ContainerName:    in.optionalString("container_name", "app"),
			Image:            in.string("image"),
			CPU:              in.int("cpu", DefaultCPU),
			Memory:           in.int("memory", DefaultMemory),
			Port:             in.int("port", DefaultTargetPort),
			Environment:      in.stringMap("environment"),
			TaskRoleARN:      in.optionalString("task_role_arn", ""),
			ExecutionRoleARN: in.optionalString("execution_role_arn", ""),
		},
		DesiredCount:   in.int("desired_count", DefaultDesiredCount),
		TargetGroupARN: in.optionalString("target_group_arn", ""),
		Subnets:        in.strings("subnets"),
		SecurityGroups: in.strings("security_groups"),
		AssignPublicIP: in.bool("assign_public_ip", false),
	}
	if in.err != nil {
		return nil, in.err
	}
	svc, err := c.Compute.EnsureService(ctx, spec)
	if err != nil {
		return nil, errors.Wrap(err, "ensure service")
	}
	return &resource.Response{Outputs: resource.Attrs{
		"arn":                 cty.StringVal(svc.ARN),
		"cluster_arn":         cty.StringVal(svc.ClusterARN),
		"task_definition_arn": cty.StringVal(svc.TaskDefinitionARN),
	}}, nil
}

func (c *Cloud) dnsRecord(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	in := &inputs{attrs: req.Inputs}
	spec := RecordSpec{
		ZoneID: in.string("zone_id"),
		Name:   in.string("name"),
		Type:   in.optionalString("type", "A"),
		Values: in.strings("values"),
		TTL:    in.int("ttl", DefaultRecordTTL),
	}
	if req.Inputs.Has("alias_name") {
		spec.Alias = &Alias{
			Name:                 in.string("alias_name"),
			ZoneID:               in.string("alias_zone_id"),
			EvaluateTargetHealth: in.bool("evaluate_target_health", true),
		}
		spec.TTL = 0
	}
	if in.err != nil {
		return nil, in.err
	}
	if spec.Alias == nil && len(spec.Values) == 0 {
		return nil, errors.New("record requires values or an alias")
	}
	rec, err := c.DNS.UpsertRecord(ctx, spec)
	if err != nil {
		return nil, errors.Wrap(err, "upsert record")
	}
	return &resource.Response{Outputs: resource.Attrs{
		"fqdn": cty.StringVal(rec.FQDN),
	}}, nil
}

// fqdn returns a fully qualified domain name, with the trailing dot.
func fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return fmt.Sprintf("%s.", name)
}
