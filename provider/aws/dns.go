package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/diversitus/infra/provider"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// EnsureZone creates a public hosted zone for a domain if one does not exist.
func (c *Cloud) EnsureZone(ctx context.Context, domain string) (*provider.ZoneInfo, error) {
	name := fqdn(domain)

	var zoneID string
	err := c.retry(ctx, "list hosted zones", func() error {
		resp, err := c.Route53.ListHostedZonesByNameRequest(&route53.ListHostedZonesByNameInput{
			DNSName:  aws.String(name),
			MaxItems: aws.String("10"),
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		zoneID = publicZoneID(resp.HostedZones, name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var nameServers []string
	if zoneID == "" {
		c.logger().Info("Create hosted zone", zap.String("domain", domain))
		input := &route53.CreateHostedZoneInput{
			Name:            aws.String(name),
			CallerReference: aws.String(ksuid.New().String()),
		}
		err := c.retry(ctx, "create hosted zone", func() error {
			resp, err := c.Route53.CreateHostedZoneRequest(input).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			zoneID = aws.StringValue(resp.HostedZone.Id)
			if resp.DelegationSet != nil {
				nameServers = resp.DelegationSet.NameServers
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		err := c.retry(ctx, "get hosted zone", func() error {
			resp, err := c.Route53.GetHostedZoneRequest(&route53.GetHostedZoneInput{
				Id: aws.String(zoneID),
			}).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			if resp.DelegationSet != nil {
				nameServers = resp.DelegationSet.NameServers
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return &provider.ZoneInfo{
		ID:          strings.TrimPrefix(zoneID, "/hostedzone/"),
		Name:        domain,
		NameServers: nameServers,
	}, nil
}

func isPrivate(z route53.HostedZone) bool {
	return z.Config != nil && aws.BoolValue(z.Config.PrivateZone)
}

// publicZoneID returns the id of the first public zone named name. Zones are
// listed in name order, so private zones with the same name may come first.
func publicZoneID(zones []route53.HostedZone, name string) string {
	for _, z := range zones {
		if aws.StringValue(z.Name) != name {
			continue
		}
		if !isPrivate(z) {
			return aws.StringValue(z.Id)
		}
	}
	return ""
}

// UpsertRecord creates or replaces a record set.
func (c *Cloud) UpsertRecord(ctx context.Context, spec provider.RecordSpec) (*provider.RecordInfo, error) {
	set := &route53.ResourceRecordSet{
		Name: aws.String(fqdn(spec.Name)),
		Type: route53.RRType(spec.Type),
	}
	if spec.Alias != nil {
		set.AliasTarget = &route53.AliasTarget{
			DNSName:              aws.String(spec.Alias.Name),
			HostedZoneId:         aws.String(spec.Alias.ZoneID),
			EvaluateTargetHealth: aws.Bool(spec.Alias.EvaluateTargetHealth),
		}
	} else {
		set.TTL = aws.Int64(spec.TTL)
		for _, v := range spec.Values {
			set.ResourceRecords = append(set.ResourceRecords, route53.ResourceRecord{Value: aws.String(v)})
		}
	}

	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(spec.ZoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: []route53.Change{{
				Action:            route53.ChangeActionUpsert,
				ResourceRecordSet: set,
			}},
		},
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	err := c.retry(ctx, "change record sets", func() error {
		_, err := c.Route53.ChangeResourceRecordSetsRequest(input).Send(ctx)
		return handlePutError(err)
	})
	if err != nil {
		return nil, err
	}
	return &provider.RecordInfo{FQDN: fqdn(spec.Name)}, nil
}

func fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}
