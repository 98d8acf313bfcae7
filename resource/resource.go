package resource

import (
	"fmt"
	"sort"
	"strings"

	"github.com/diversitus/infra/suggest"
)

// A Kind identifies the type of infrastructure a resource declares. The kind
// determines which Handler reconciles it.
type Kind int

// Supported resource kinds.
const (
	KindRegistry Kind = iota + 1
	KindImage
	KindTable
	KindPolicy
	KindZone
	KindCertificate
	KindValidationRecord
	KindLoadBalancer
	KindService
	KindDNSRecord
)

var kindNames = map[Kind]string{
	KindRegistry:         "registry",
	KindImage:            "image",
	KindTable:            "table",
	KindPolicy:           "policy",
	KindZone:             "zone",
	KindCertificate:      "certificate",
	KindValidationRecord: "validation_record",
	KindLoadBalancer:     "load_balancer",
	KindService:          "service",
	KindDNSRecord:        "dns_record",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind returns the kind with the given name. The name is matched case
// insensitively.
func ParseKind(name string) (Kind, error) {
	names := make([]string, 0, len(kindNames))
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return k, nil
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return 0, fmt.Errorf("unknown resource kind %q%s", name, suggest.DidYouMean(strings.ToLower(name), names))
}

// Status is the reconciliation status of a resource.
type Status int

// Resource statuses.
//
//   Pending -> InProgress -> Validated
//                        \-> Failed
//
// A resource that is skipped because an upstream resource failed remains
// Pending.
const (
	StatusPending Status = iota
	StatusInProgress
	StatusValidated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusValidated:
		return "validated"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// A Spec is a declared unit of infrastructure.
//
// The inputs for the spec are maintained by the graph the spec is added to, as
// they may refer to outputs from other resources.
type Spec struct {
	Kind Kind
	Name string // Unique within a graph.

	// DependsOn contains the names of resources this resource depends on. It is
	// derived from the references in the inputs when the graph is built; any
	// value set before building is replaced.
	DependsOn []string
}

func (s Spec) String() string { return fmt.Sprintf("%s.%s", s.Kind, s.Name) }

// Resolved is the runtime state of a resource during reconciliation.
//
// Outputs are only set after the resource has been successfully reconciled.
type Resolved struct {
	Name    string
	Kind    Kind
	Status  Status
	Outputs Attrs
}

// Copy returns a copy of the resolved resource. The output map is copied, the
// values themselves are immutable.
func (r *Resolved) Copy() *Resolved {
	cpy := *r
	if r.Outputs != nil {
		cpy.Outputs = make(Attrs, len(r.Outputs))
		for k, v := range r.Outputs {
			cpy.Outputs[k] = v
		}
	}
	return &cpy
}

// A Challenge is a proof artifact an external authority checks before
// granting a certificate. For DNS validation the record must be published in
// the zone the domain belongs to.
type Challenge struct {
	RecordName   string
	RecordType   string
	RecordValue  string
	ExpectedFQDN string
}
