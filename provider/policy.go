package provider

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// DefaultPolicyVersion is set on a policy when the version is omitted.
const DefaultPolicyVersion = "2012-10-17"

// A PolicyDocument is an IAM policy.
type PolicyDocument struct {
	// If not set, DefaultPolicyVersion is used.
	Version    string
	Statements []PolicyStatement
}

// A PolicyStatement is a single statement in a policy document.
type PolicyStatement struct {
	ID string

	// Allow or Deny.
	Effect string

	// The principals the statement applies to, for example
	// {"Service": ["ecs-tasks.amazonaws.com"]}. Must be empty for policies
	// attached to a role.
	Principals map[string][]string

	Actions   []string
	Resources []string
}

type policyJSON struct {
	Version    string          `json:"Version"`
	Statements []statementJSON `json:"Statement"`
}

type statementJSON struct {
	Sid       string                 `json:"Sid,omitempty"`
	Effect    string                 `json:"Effect"`              // Allow / Deny
	Action    interface{}            `json:"Action,omitempty"`    // string or []string
	Principal map[string]interface{} `json:"Principal,omitempty"` // map to string or []string
	Resource  interface{}            `json:"Resource,omitempty"`  // string or []string
}

// JSON encodes the policy document.
func (p PolicyDocument) JSON() (string, error) {
	doc := policyJSON{Version: p.Version}
	if doc.Version == "" {
		doc.Version = DefaultPolicyVersion
	}
	for i, stmt := range p.Statements {
		if stmt.Effect != "Allow" && stmt.Effect != "Deny" {
			return "", errors.Errorf("statement %d: effect must be Allow or Deny, got %q", i, stmt.Effect)
		}
		s := statementJSON{
			Sid:      stmt.ID,
			Effect:   stmt.Effect,
			Action:   stringOrSlice(stmt.Actions),
			Resource: stringOrSlice(stmt.Resources),
		}
		if len(stmt.Principals) > 0 {
			s.Principal = make(map[string]interface{}, len(stmt.Principals))
			for k, pp := range stmt.Principals {
				s.Principal[k] = stringOrSlice(pp)
			}
		}
		doc.Statements = append(doc.Statements, s)
	}
	j, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(j), nil
}

// AssumeRolePolicy returns a policy that allows the given service to assume a
// role.
func AssumeRolePolicy(service string) string {
	doc := PolicyDocument{
		Statements: []PolicyStatement{{
			Effect:     "Allow",
			Actions:    []string{"sts:AssumeRole"},
			Principals: map[string][]string{"Service": {service}},
		}},
	}
	j, err := doc.JSON()
	if err != nil {
		// Static document.
		panic(err)
	}
	return j
}

// stringOrSlice returns the first string only if the length is 1. Otherwise
// returns the original string slice.
func stringOrSlice(ss []string) interface{} {
	switch len(ss) {
	case 0:
		return nil
	case 1:
		return ss[0]
	default:
		return ss
	}
}
