// Package mock provides an in-memory cloud for tests and dry runs.
package mock

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/diversitus/infra/provider"
	"github.com/diversitus/infra/resource"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// An Event describes an operation that was done.
type Event struct {
	Op      string // create / update / noop / put / publish
	Service string // registry / image / table / role / policy / zone / record / certificate / load_balancer / service / item
	Name    string
}

func (e Event) String() string { return fmt.Sprintf("%s %s %s", e.Op, e.Service, e.Name) }

// Cloud is an in-memory implementation of every cloud service. The zero value
// is ready to use.
//
// Certificates are validated once their challenge record has been published
// to a zone and PendingPolls status checks have reported pending.
type Cloud struct {
	// Region and Account are used when generating ARNs. If not set,
	// us-east-1 and 123456789012 are used.
	Region  string
	Account string

	// PendingPolls is the number of validation status checks that report
	// pending after the challenge has been published.
	PendingPolls int

	// RejectValidation causes certificate validation to fail.
	RejectValidation bool

	// Errors injects errors into operations. The key is the service and
	// name of the event, for example "table jobs". A matching operation
	// returns the error and has no effect.
	Errors map[string]error

	mu       sync.Mutex
	events   []Event
	repos    map[string]provider.RepositoryInfo
	images   map[string]provider.ImageInfo
	tables   map[string]*table
	roles    map[string]*role
	zones    map[string]provider.ZoneInfo
	records  map[string]provider.RecordSpec
	certs    map[string]*cert
	lbs      map[string]provider.LoadBalancerInfo
	services map[string]provider.ServiceSpec
}

type table struct {
	spec  provider.TableSpec
	arn   string
	items map[string]map[string]interface{}
}

type role struct {
	spec     provider.RoleSpec
	id       string
	policies map[string]string
}

type cert struct {
	arn    string
	domain string
	ch     resource.Challenge
	polls  int
}

var _ interface {
	provider.Registry
	provider.ImageBuilder
	provider.Tables
	provider.Identity
	provider.DNS
	provider.Certificates
	provider.Compute
} = (*Cloud)(nil)

// Provider returns a provider cloud where every service is backed by c.
func (c *Cloud) Provider() *provider.Cloud {
	return &provider.Cloud{
		Region:       c.region(),
		Registry:     c,
		Images:       c,
		Tables:       c,
		Identity:     c,
		DNS:          c,
		Certificates: c,
		Compute:      c,
	}
}

// Events returns the events that have been recorded.
func (c *Cloud) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// EventsFor returns the recorded events for a single service.
func (c *Cloud) EventsFor(service string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Service == service {
			out = append(out, e)
		}
	}
	return out
}

func (c *Cloud) region() string {
	if c.Region == "" {
		return "us-east-1"
	}
	return c.Region
}

func (c *Cloud) account() string {
	if c.Account == "" {
		return "123456789012"
	}
	return c.Account
}

func (c *Cloud) arn(service, resource string) string {
	return fmt.Sprintf("arn:aws:%s:%s:%s:%s", service, c.region(), c.account(), resource)
}

// begin locks the cloud and returns the injected error for the operation, if
// any. The caller must unlock.
func (c *Cloud) begin(ctx context.Context, service, name string) error {
	c.mu.Lock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := c.Errors[service+" "+name]; ok {
		return err
	}
	return nil
}

func (c *Cloud) record(op, service, name string) {
	c.events = append(c.events, Event{Op: op, Service: service, Name: name})
}

// EnsureRepository creates a repository if it does not exist.
func (c *Cloud) EnsureRepository(ctx context.Context, name string) (*provider.RepositoryInfo, error) {
	err := c.begin(ctx, "registry", name)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if repo, ok := c.repos[name]; ok {
		c.record("noop", "registry", name)
		return &repo, nil
	}
	if c.repos == nil {
		c.repos = make(map[string]provider.RepositoryInfo)
	}
	repo := provider.RepositoryInfo{
		Name: name,
		URL:  fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s", c.account(), c.region(), name),
		ARN:  c.arn("ecr", "repository/"+name),
	}
	c.repos[name] = repo
	c.record("create", "registry", name)
	return &repo, nil
}

// BuildAndPush records an image push. The digest is derived from the spec.
func (c *Cloud) BuildAndPush(ctx context.Context, spec provider.ImageSpec) (*provider.ImageInfo, error) {
	uri := spec.RepositoryURL + ":" + spec.Tag
	err := c.begin(ctx, "image", uri)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !c.hasRepositoryURL(spec.RepositoryURL) {
		return nil, errors.Errorf("repository %s does not exist", spec.RepositoryURL)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", spec.Context, spec.Dockerfile, spec.Platform)))
	img := provider.ImageInfo{URI: uri, Digest: fmt.Sprintf("sha256:%x", sum)}
	if c.images == nil {
		c.images = make(map[string]provider.ImageInfo)
	}
	op := "create"
	if _, ok := c.images[uri]; ok {
		op = "update"
	}
	c.images[uri] = img
	c.record(op, "image", uri)
	return &img, nil
}

func (c *Cloud) hasRepositoryURL(url string) bool {
	for _, r := range c.repos {
		if r.URL == url {
			return true
		}
	}
	return false
}

// EnsureTable creates a table or updates its settings.
func (c *Cloud) EnsureTable(ctx context.Context, spec provider.TableSpec) (*provider.TableInfo, error) {
	err := c.begin(ctx, "table", spec.Name)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if c.tables == nil {
		c.tables = make(map[string]*table)
	}
	t, ok := c.tables[spec.Name]
	switch {
	case !ok:
		t = &table{
			spec:  spec,
			arn:   c.arn("dynamodb", "table/"+spec.Name),
			items: make(map[string]map[string]interface{}),
		}
		c.tables[spec.Name] = t
		c.record("create", "table", spec.Name)
	case t.spec.HashKey != spec.HashKey:
		return nil, errors.Errorf("table %s: hash key cannot be changed from %q to %q", spec.Name, t.spec.HashKey, spec.HashKey)
	case !cmp.Equal(t.spec, spec):
		t.spec = spec
		c.record("update", "table", spec.Name)
	default:
		c.record("noop", "table", spec.Name)
	}
	return &provider.TableInfo{Name: spec.Name, ARN: t.arn, HashKey: spec.HashKey}, nil
}

// PutItem creates or replaces an item.
func (c *Cloud) PutItem(ctx context.Context, tableName string, item map[string]interface{}) error {
	err := c.begin(ctx, "table", tableName)
	defer c.mu.Unlock()
	if err != nil {
		return err
	}
	t, ok := c.tables[tableName]
	if !ok {
		return errors.Errorf("table %s does not exist", tableName)
	}
	key, ok := item[t.spec.HashKey]
	if !ok {
		return errors.Errorf("table %s: item has no %s key", tableName, t.spec.HashKey)
	}
	k := fmt.Sprint(key)
	cpy := make(map[string]interface{}, len(item))
	for n, v := range item {
		cpy[n] = v
	}
	t.items[k] = cpy
	c.record("put", "item", tableName+"/"+k)
	return nil
}

// ScanItems returns all items in a table, ordered by key.
func (c *Cloud) ScanItems(ctx context.Context, tableName string) ([]map[string]interface{}, error) {
	err := c.begin(ctx, "table", tableName)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	t, ok := c.tables[tableName]
	if !ok {
		return nil, errors.Errorf("table %s does not exist", tableName)
	}
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]interface{}, len(keys))
	for i, k := range keys {
		cpy := make(map[string]interface{}, len(t.items[k]))
		for n, v := range t.items[k] {
			cpy[n] = v
		}
		out[i] = cpy
	}
	return out, nil
}

// Items returns the number of items in a table.
func (c *Cloud) Items(tableName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

// EnsureRole creates a role or updates its trust policy.
func (c *Cloud) EnsureRole(ctx context.Context, spec provider.RoleSpec) (*provider.RoleInfo, error) {
	err := c.begin(ctx, "role", spec.Name)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if c.roles == nil {
		c.roles = make(map[string]*role)
	}
	r, ok := c.roles[spec.Name]
	switch {
	case !ok:
		r = &role{
			spec:     spec,
			id:       fmt.Sprintf("AROA%d", len(c.roles)+1),
			policies: make(map[string]string),
		}
		c.roles[spec.Name] = r
		c.record("create", "role", spec.Name)
	case !cmp.Equal(r.spec, spec):
		r.spec = spec
		c.record("update", "role", spec.Name)
	default:
		c.record("noop", "role", spec.Name)
	}
	return &provider.RoleInfo{ID: r.id, ARN: c.roleARN(spec.Name), Name: spec.Name}, nil
}

func (c *Cloud) roleARN(name string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", c.account(), name)
}

// AttachInlinePolicy sets an inline policy on a role.
func (c *Cloud) AttachInlinePolicy(ctx context.Context, roleName, policyName, document string) error {
	err := c.begin(ctx, "policy", policyName)
	defer c.mu.Unlock()
	if err != nil {
		return err
	}
	r, ok := c.roles[roleName]
	if !ok {
		return errors.Errorf("role %s does not exist", roleName)
	}
	op := "create"
	if prev, ok := r.policies[policyName]; ok {
		op = "update"
		if prev == document {
			op = "noop"
		}
	}
	r.policies[policyName] = document
	c.record(op, "policy", policyName)
	return nil
}

// Policy returns an inline policy document attached to a role.
func (c *Cloud) Policy(roleName, policyName string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.roles[roleName]
	if !ok {
		return "", false
	}
	doc, ok := r.policies[policyName]
	return doc, ok
}

// EnsureZone creates a hosted zone for a domain if it does not exist.
func (c *Cloud) EnsureZone(ctx context.Context, domain string) (*provider.ZoneInfo, error) {
	err := c.begin(ctx, "zone", domain)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if z, ok := c.zones[domain]; ok {
		c.record("noop", "zone", domain)
		return &z, nil
	}
	if c.zones == nil {
		c.zones = make(map[string]provider.ZoneInfo)
	}
	n := len(c.zones) + 1
	z := provider.ZoneInfo{
		ID:   fmt.Sprintf("Z%08d", n),
		Name: domain,
		NameServers: []string{
			fmt.Sprintf("ns-%d.awsdns-00.com", n),
			fmt.Sprintf("ns-%d.awsdns-01.net", n),
		},
	}
	c.zones[domain] = z
	c.record("create", "zone", domain)
	return &z, nil
}

func recordKey(zoneID, name, typ string) string {
	return fmt.Sprintf("%s/%s/%s", zoneID, strings.TrimSuffix(name, "."), typ)
}

// UpsertRecord creates or replaces a record in a zone.
func (c *Cloud) UpsertRecord(ctx context.Context, spec provider.RecordSpec) (*provider.RecordInfo, error) {
	err := c.begin(ctx, "record", spec.Name)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var zone *provider.ZoneInfo
	for _, z := range c.zones {
		if z.ID == spec.ZoneID {
			z := z
			zone = &z
			break
		}
	}
	if zone == nil {
		return nil, errors.Errorf("zone %s does not exist", spec.ZoneID)
	}
	if c.records == nil {
		c.records = make(map[string]provider.RecordSpec)
	}
	k := recordKey(spec.ZoneID, spec.Name, spec.Type)
	op := "create"
	if prev, ok := c.records[k]; ok {
		op = "update"
		if cmp.Equal(prev, spec) {
			op = "noop"
		}
	}
	c.records[k] = spec
	c.record(op, "record", spec.Name)
	return &provider.RecordInfo{FQDN: strings.TrimSuffix(spec.Name, ".") + "."}, nil
}

// Record returns a published record.
func (c *Cloud) Record(zoneID, name, typ string) (provider.RecordSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[recordKey(zoneID, name, typ)]
	return r, ok
}

// RequestCertificate requests a certificate for a domain. Requesting a
// certificate for the same domain again returns the existing certificate.
func (c *Cloud) RequestCertificate(ctx context.Context, domain, method string) (*provider.CertificateInfo, error) {
	err := c.begin(ctx, "certificate", domain)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if method != provider.ValidationDNS {
		return nil, errors.Errorf("validation method %q is not supported", method)
	}
	if c.certs == nil {
		c.certs = make(map[string]*cert)
	}
	ct, ok := c.certs[domain]
	if ok {
		c.record("noop", "certificate", domain)
	} else {
		sum := sha256.Sum256([]byte(domain))
		token := fmt.Sprintf("_%x", sum[:8])
		ct = &cert{
			arn:    c.arn("acm", fmt.Sprintf("certificate/%x", sum[8:16])),
			domain: domain,
			ch: resource.Challenge{
				RecordName:  fmt.Sprintf("%s.%s.", token, domain),
				RecordType:  "CNAME",
				RecordValue: fmt.Sprintf("%s.acm-validations.aws.", token),
			},
		}
		ct.ch.ExpectedFQDN = ct.ch.RecordName
		c.certs[domain] = ct
		c.record("create", "certificate", domain)
	}
	return &provider.CertificateInfo{
		ARN:        ct.arn,
		Domain:     domain,
		Challenges: []resource.Challenge{ct.ch},
	}, nil
}

// ValidationStatus returns the validation status of a certificate.
func (c *Cloud) ValidationStatus(ctx context.Context, arn string) (resource.ValidationStatus, error) {
	err := c.begin(ctx, "certificate", arn)
	defer c.mu.Unlock()
	if err != nil {
		return resource.ValidationPending, err
	}
	var ct *cert
	for _, v := range c.certs {
		if v.arn == arn {
			ct = v
		}
	}
	if ct == nil {
		return resource.ValidationPending, errors.Errorf("certificate %s does not exist", arn)
	}
	if !c.published(ct.ch) {
		return resource.ValidationPending, nil
	}
	if c.RejectValidation {
		return resource.ValidationFailure, nil
	}
	if ct.polls < c.PendingPolls {
		ct.polls++
		return resource.ValidationPending, nil
	}
	return resource.ValidationSuccess, nil
}

func (c *Cloud) published(ch resource.Challenge) bool {
	for k, r := range c.records {
		if strings.HasSuffix(k, "/"+strings.TrimSuffix(ch.RecordName, ".")+"/"+ch.RecordType) &&
			len(r.Values) == 1 && r.Values[0] == ch.RecordValue {
			return true
		}
	}
	return false
}

// EnsureLoadBalancer creates a load balancer with a listener and target
// group, or updates them.
func (c *Cloud) EnsureLoadBalancer(ctx context.Context, spec provider.LoadBalancerSpec) (*provider.LoadBalancerInfo, error) {
	err := c.begin(ctx, "load_balancer", spec.Name)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if spec.Listener.CertificateARN != "" && !c.validated(spec.Listener.CertificateARN) {
		return nil, errors.Errorf("certificate %s is not validated", spec.Listener.CertificateARN)
	}
	if c.lbs == nil {
		c.lbs = make(map[string]provider.LoadBalancerInfo)
	}
	op := "update"
	lb, ok := c.lbs[spec.Name]
	if !ok {
		op = "create"
		lb = provider.LoadBalancerInfo{
			ARN:            c.arn("elasticloadbalancing", "loadbalancer/app/"+spec.Name),
			DNSName:        fmt.Sprintf("%s-1234567890.%s.elb.amazonaws.com", spec.Name, c.region()),
			ZoneID:         "Z35SXDOTRQ7X7K",
			TargetGroupARN: c.arn("elasticloadbalancing", "targetgroup/"+spec.Name),
			Subnets:        []string{"subnet-a", "subnet-b"},
			SecurityGroups: []string{"sg-default"},
		}
		c.lbs[spec.Name] = lb
	}
	c.record(op, "load_balancer", spec.Name)
	return &lb, nil
}

func (c *Cloud) validated(arn string) bool {
	for _, ct := range c.certs {
		if ct.arn == arn {
			return c.published(ct.ch) && !c.RejectValidation && ct.polls >= c.PendingPolls
		}
	}
	return false
}

// EnsureService creates or updates a container service.
func (c *Cloud) EnsureService(ctx context.Context, spec provider.ServiceSpec) (*provider.ServiceInfo, error) {
	err := c.begin(ctx, "service", spec.Name)
	defer c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if c.services == nil {
		c.services = make(map[string]provider.ServiceSpec)
	}
	op := "create"
	rev := 1
	if prev, ok := c.services[spec.Name]; ok {
		op = "noop"
		if !cmp.Equal(prev, spec) {
			op = "update"
		}
		rev = c.revisions(spec.Name)
		if op == "update" {
			rev++
		}
	}
	c.services[spec.Name] = spec
	c.record(op, "service", spec.Name)
	return &provider.ServiceInfo{
		ARN:               c.arn("ecs", fmt.Sprintf("service/%s/%s", spec.Cluster, spec.Name)),
		ClusterARN:        c.arn("ecs", "cluster/"+spec.Cluster),
		TaskDefinitionARN: c.arn("ecs", fmt.Sprintf("task-definition/%s:%d", spec.Task.Family, rev)),
	}, nil
}

func (c *Cloud) revisions(name string) int {
	n := 0
	for _, e := range c.events {
		if e.Service == "service" && e.Name == name && e.Op != "noop" {
			n++
		}
	}
	return n
}

// Service returns the current spec of a service.
func (c *Cloud) Service(name string) (provider.ServiceSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.services[name]
	return s, ok
}
