// Package provider binds resource kinds to the cloud services that own them.
//
// Every service operation is create-or-update: calling it again with the same
// spec converges to the same state and returns the same information, without
// creating duplicates.
package provider

import (
	"context"

	"github.com/diversitus/infra/resource"
)

// RepositoryInfo describes a container image repository.
type RepositoryInfo struct {
	Name string
	URL  string
	ARN  string
}

// A Registry hosts container image repositories.
type Registry interface {
	EnsureRepository(ctx context.Context, name string) (*RepositoryInfo, error)
}

// ImageSpec describes a container image to build.
type ImageSpec struct {
	Context       string // Build context directory.
	Dockerfile    string // Relative to the build context.
	RepositoryURL string
	Platform      string // For example linux/amd64.
	Tag           string
}

// ImageInfo describes a pushed image.
type ImageInfo struct {
	URI    string // Repository URL with tag.
	Digest string
}

// An ImageBuilder builds container images and pushes them to a repository.
type ImageBuilder interface {
	BuildAndPush(ctx context.Context, spec ImageSpec) (*ImageInfo, error)
}

// Attribute types for table keys.
const (
	AttributeString = "S"
	AttributeNumber = "N"
)

// BillingPayPerRequest is the on-demand billing mode for tables.
const BillingPayPerRequest = "PAY_PER_REQUEST"

// IndexSpec describes a global secondary index. All attributes are projected.
type IndexSpec struct {
	Name    string
	HashKey string
}

// TableSpec describes a table.
type TableSpec struct {
	Name        string
	HashKey     string
	Attributes  map[string]string // Key attribute name -> type.
	Indexes     []IndexSpec
	BillingMode string
	Tags        map[string]string
}

// TableInfo describes a table.
type TableInfo struct {
	Name    string
	ARN     string
	HashKey string
}

// Tables manages tables and their items.
type Tables interface {
	EnsureTable(ctx context.Context, spec TableSpec) (*TableInfo, error)

	// PutItem creates or fully replaces the item with the same primary key.
	PutItem(ctx context.Context, table string, item map[string]interface{}) error

	// ScanItems returns all items in a table.
	ScanItems(ctx context.Context, table string) ([]map[string]interface{}, error)
}

// RoleSpec describes a role that can be assumed by a service.
type RoleSpec struct {
	Name             string
	AssumeRolePolicy string   // JSON policy document.
	ManagedPolicies  []string // ARNs of managed policies to attach.
}

// RoleInfo describes a role.
type RoleInfo struct {
	ID   string
	ARN  string
	Name string
}

// Identity manages roles and their permissions.
type Identity interface {
	EnsureRole(ctx context.Context, spec RoleSpec) (*RoleInfo, error)
	AttachInlinePolicy(ctx context.Context, roleName, policyName, document string) error
}

// ZoneInfo describes a hosted DNS zone.
type ZoneInfo struct {
	ID          string
	Name        string
	NameServers []string
}

// An Alias points a record at another service's DNS name.
type Alias struct {
	Name                 string
	ZoneID               string
	EvaluateTargetHealth bool
}

// RecordSpec describes a DNS record. Either Values or Alias must be set.
type RecordSpec struct {
	ZoneID string
	Name   string
	Type   string
	Values []string
	TTL    int64
	Alias  *Alias
}

// RecordInfo describes a DNS record.
type RecordInfo struct {
	FQDN string
}

// DNS manages hosted zones and records.
type DNS interface {
	EnsureZone(ctx context.Context, domain string) (*ZoneInfo, error)
	UpsertRecord(ctx context.Context, spec RecordSpec) (*RecordInfo, error)
}

// ValidationDNS is the DNS validation method for certificates.
const ValidationDNS = "DNS"

// CertificateInfo describes a requested certificate.
type CertificateInfo struct {
	ARN        string
	Domain     string
	Challenges []resource.Challenge
}

// Certificates requests certificates from a certificate authority.
type Certificates interface {
	RequestCertificate(ctx context.Context, domain, method string) (*CertificateInfo, error)
	ValidationStatus(ctx context.Context, arn string) (resource.ValidationStatus, error)
}

// ListenerSpec describes a load balancer listener.
type ListenerSpec struct {
	Port           int64
	Protocol       string
	CertificateARN string
}

// TargetGroupSpec describes the targets of a load balancer.
type TargetGroupSpec struct {
	Port            int64
	Protocol        string
	HealthCheckPath string
}

// LoadBalancerSpec describes an internet facing application load balancer.
type LoadBalancerSpec struct {
	Name        string
	Listener    ListenerSpec
	TargetGroup TargetGroupSpec
}

// LoadBalancerInfo describes a load balancer.
type LoadBalancerInfo struct {
	ARN            string
	DNSName        string
	ZoneID         string
	TargetGroupARN string
	Subnets        []string
	SecurityGroups []string
}

// TaskSpec describes the container to run in a service.
type TaskSpec struct {
	Family           string
	ContainerName    string
	Image            string
	CPU              int64
	Memory           int64
	Port             int64
	Environment      map[string]string
	TaskRoleARN      string
	ExecutionRoleARN string
}

// ServiceSpec describes a container service.
type ServiceSpec struct {
	Cluster        string
	Name           string
	Task           TaskSpec
	DesiredCount   int64
	TargetGroupARN string
	Subnets        []string
	SecurityGroups []string
	AssignPublicIP bool
}

// ServiceInfo describes a container service.
type ServiceInfo struct {
	ARN               string
	ClusterARN        string
	TaskDefinitionARN string
}

// Compute manages load balancers and container services.
type Compute interface {
	EnsureLoadBalancer(ctx context.Context, spec LoadBalancerSpec) (*LoadBalancerInfo, error)
	EnsureService(ctx context.Context, spec ServiceSpec) (*ServiceInfo, error)
}

// A Cloud is the set of services resources are reconciled against.
type Cloud struct {
	Region string

	Registry     Registry
	Images       ImageBuilder
	Tables       Tables
	Identity     Identity
	DNS          DNS
	Certificates Certificates
	Compute      Compute
}

// RegistryCredentials authenticate to a container registry.
type RegistryCredentials struct {
	Server   string
	Username string
	Password string
}
