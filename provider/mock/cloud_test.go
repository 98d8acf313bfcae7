package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/diversitus/infra/provider"
	"github.com/google/go-cmp/cmp"
)

func TestCloud_tables(t *testing.T) {
	ctx := context.Background()
	c := &Cloud{}
	spec := provider.TableSpec{Name: "jobs", HashKey: "id", Attributes: map[string]string{"id": "S"}}

	if err := c.PutItem(ctx, "jobs", map[string]interface{}{"id": "1"}); err == nil {
		t.Error("PutItem() to missing table did not return an error")
	}
	for i := 0; i < 2; i++ {
		if _, err := c.EnsureTable(ctx, spec); err != nil {
			t.Fatalf("EnsureTable() error = %v", err)
		}
	}
	spec.Tags = map[string]string{"Project": "Diversitus"}
	if _, err := c.EnsureTable(ctx, spec); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	spec.HashKey = "name"
	if _, err := c.EnsureTable(ctx, spec); err == nil {
		t.Error("EnsureTable() with changed hash key did not return an error")
	}

	for _, item := range []map[string]interface{}{
		{"id": "b", "title": "first"},
		{"id": "a", "title": "other"},
		{"id": "b", "title": "replaced"},
	} {
		if err := c.PutItem(ctx, "jobs", item); err != nil {
			t.Fatalf("PutItem() error = %v", err)
		}
	}
	got, err := c.ScanItems(ctx, "jobs")
	if err != nil {
		t.Fatalf("ScanItems() error = %v", err)
	}
	want := []map[string]interface{}{
		{"id": "a", "title": "other"},
		{"id": "b", "title": "replaced"},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("ScanItems() (-got +want)\n%s", diff)
	}

	wantEvents := []Event{
		{Op: "create", Service: "table", Name: "jobs"},
		{Op: "noop", Service: "table", Name: "jobs"},
		{Op: "update", Service: "table", Name: "jobs"},
	}
	if diff := cmp.Diff(c.EventsFor("table"), wantEvents); diff != "" {
		t.Errorf("Events (-got +want)\n%s", diff)
	}
}

func TestCloud_errors(t *testing.T) {
	boom := errors.New("boom")
	c := &Cloud{Errors: map[string]error{"zone example.com": boom}}

	if _, err := c.EnsureZone(context.Background(), "example.com"); err != boom {
		t.Errorf("EnsureZone() error = %v, want %v", err, boom)
	}
	if _, err := c.EnsureZone(context.Background(), "example.org"); err != nil {
		t.Errorf("EnsureZone() error = %v", err)
	}
	if n := len(c.Events()); n != 1 {
		t.Errorf("Got %d events, want 1", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.EnsureRepository(ctx, "app"); err != context.Canceled {
		t.Errorf("EnsureRepository() error = %v, want %v", err, context.Canceled)
	}
}

func TestCloud_validationRejected(t *testing.T) {
	ctx := context.Background()
	c := &Cloud{RejectValidation: true}
	zone, _ := c.EnsureZone(ctx, "example.com")
	cert, err := c.RequestCertificate(ctx, "example.com", provider.ValidationDNS)
	if err != nil {
		t.Fatal(err)
	}
	ch := cert.Challenges[0]
	if _, err := c.UpsertRecord(ctx, provider.RecordSpec{
		ZoneID: zone.ID, Name: ch.RecordName, Type: ch.RecordType, Values: []string{ch.RecordValue},
	}); err != nil {
		t.Fatal(err)
	}
	status, err := c.ValidationStatus(ctx, cert.ARN)
	if err != nil {
		t.Fatal(err)
	}
	if status.String() != "failure" {
		t.Errorf("Status = %s, want failure", status)
	}
	if _, err := c.EnsureLoadBalancer(ctx, provider.LoadBalancerSpec{
		Name:     "lb",
		Listener: provider.ListenerSpec{CertificateARN: cert.ARN},
	}); err == nil {
		t.Error("EnsureLoadBalancer() with rejected certificate did not return an error")
	}
}
