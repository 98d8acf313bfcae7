package aws

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/cenkalti/backoff"
	"github.com/diversitus/infra/provider"
	"github.com/diversitus/infra/resource"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RequestCertificate requests a certificate for a domain. If a certificate
// that has not failed validation already exists for the domain, it is
// returned instead.
func (c *Cloud) RequestCertificate(ctx context.Context, domain, method string) (*provider.CertificateInfo, error) {
	arn, err := c.findCertificate(ctx, domain)
	if err != nil {
		return nil, err
	}

	if arn == "" {
		c.logger().Info("Request certificate", zap.String("domain", domain))
		input := &acm.RequestCertificateInput{
			DomainName:       aws.String(domain),
			ValidationMethod: acm.ValidationMethod(method),
			IdempotencyToken: aws.String(idempotencyToken(domain)),
		}
		if err := input.Validate(); err != nil {
			return nil, err
		}
		err := c.retry(ctx, "request certificate", func() error {
			resp, err := c.ACM.RequestCertificateRequest(input).Send(ctx)
			if err != nil {
				return handlePutError(err)
			}
			arn = aws.StringValue(resp.CertificateArn)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	challenges, err := c.challenges(ctx, arn)
	if err != nil {
		return nil, err
	}
	return &provider.CertificateInfo{
		ARN:        arn,
		Domain:     domain,
		Challenges: challenges,
	}, nil
}

// idempotencyToken returns a token that makes repeated requests for the same
// domain within one hour return the same certificate.
func idempotencyToken(domain string) string {
	sum := sha256.Sum256([]byte(domain))
	return fmt.Sprintf("%x", sum[:16])
}

func (c *Cloud) findCertificate(ctx context.Context, domain string) (string, error) {
	var next *string
	for {
		var resp *acm.ListCertificatesResponse
		err := c.retry(ctx, "list certificates", func() error {
			var err error
			resp, err = c.ACM.ListCertificatesRequest(&acm.ListCertificatesInput{
				NextToken: next,
				CertificateStatuses: []acm.CertificateStatus{
					acm.CertificateStatusPendingValidation,
					acm.CertificateStatusIssued,
				},
			}).Send(ctx)
			return handlePutError(err)
		})
		if err != nil {
			return "", err
		}
		for _, cert := range resp.CertificateSummaryList {
			if aws.StringValue(cert.DomainName) == domain {
				return aws.StringValue(cert.CertificateArn), nil
			}
		}
		if resp.NextToken == nil {
			return "", nil
		}
		next = resp.NextToken
	}
}

var errNoRecord = errors.New("validation record not yet available")

// challenges returns the DNS validation records for a certificate. The
// records are assigned asynchronously after the certificate is requested.
func (c *Cloud) challenges(ctx context.Context, arn string) ([]resource.Challenge, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = 2 * time.Minute

	var out []resource.Challenge
	err := backoff.Retry(func() error {
		detail, err := c.describeCertificate(ctx, arn)
		if err != nil {
			return backoff.Permanent(err)
		}
		out = out[:0]
		for _, opt := range detail.DomainValidationOptions {
			rec := opt.ResourceRecord
			if rec == nil {
				return errNoRecord
			}
			out = append(out, resource.Challenge{
				RecordName:   aws.StringValue(rec.Name),
				RecordType:   string(rec.Type),
				RecordValue:  aws.StringValue(rec.Value),
				ExpectedFQDN: fqdn(aws.StringValue(rec.Name)),
			})
		}
		if len(out) == 0 {
			return errNoRecord
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "get validation records for %s", arn)
	}
	return out, nil
}

func (c *Cloud) describeCertificate(ctx context.Context, arn string) (*acm.CertificateDetail, error) {
	var detail *acm.CertificateDetail
	err := c.retry(ctx, "describe certificate", func() error {
		resp, err := c.ACM.DescribeCertificateRequest(&acm.DescribeCertificateInput{
			CertificateArn: aws.String(arn),
		}).Send(ctx)
		if err != nil {
			return handlePutError(err)
		}
		detail = resp.Certificate
		return nil
	})
	return detail, err
}

// ValidationStatus returns the combined validation status for all domains of
// a certificate.
func (c *Cloud) ValidationStatus(ctx context.Context, arn string) (resource.ValidationStatus, error) {
	detail, err := c.describeCertificate(ctx, arn)
	if err != nil {
		return resource.ValidationPending, err
	}
	switch detail.Status {
	case acm.CertificateStatusIssued:
		return resource.ValidationSuccess, nil
	case acm.CertificateStatusFailed, acm.CertificateStatusValidationTimedOut, acm.CertificateStatusRevoked:
		return resource.ValidationFailure, nil
	}
	for _, opt := range detail.DomainValidationOptions {
		if opt.ValidationStatus == acm.DomainStatusFailed {
			return resource.ValidationFailure, nil
		}
	}
	return resource.ValidationPending, nil
}
