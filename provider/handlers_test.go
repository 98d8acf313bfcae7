package provider_test

import (
	"context"
	"testing"

	"github.com/diversitus/infra/provider"
	"github.com/diversitus/infra/provider/mock"
	"github.com/diversitus/infra/resource"
	"github.com/google/go-cmp/cmp"
	"github.com/zclconf/go-cty/cty"
)

func reconcile(t *testing.T, reg *resource.Registry, kind resource.Kind, name string, inputs resource.Attrs) *resource.Response {
	t.Helper()
	h, err := reg.Handler(kind)
	if err != nil {
		t.Fatalf("Handler(%s) error = %v", kind, err)
	}
	resp, err := h.Reconcile(context.Background(), &resource.Request{
		Spec:   resource.Spec{Kind: kind, Name: name},
		Inputs: inputs,
	})
	if err != nil {
		t.Fatalf("Reconcile(%s.%s) error = %v", kind, name, err)
	}
	return resp
}

func str(t *testing.T, attrs resource.Attrs, name string) string {
	t.Helper()
	s, err := attrs.String(name)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHandlers_allKinds(t *testing.T) {
	reg := provider.Handlers((&mock.Cloud{}).Provider())
	want := []resource.Kind{
		resource.KindRegistry,
		resource.KindImage,
		resource.KindTable,
		resource.KindPolicy,
		resource.KindZone,
		resource.KindCertificate,
		resource.KindValidationRecord,
		resource.KindLoadBalancer,
		resource.KindService,
		resource.KindDNSRecord,
	}
	if diff := cmp.Diff(reg.Kinds(), want); diff != "" {
		t.Errorf("Kinds() (-got +want)\n%s", diff)
	}
}

func TestHandlers_registryAndImage(t *testing.T) {
	cloud := &mock.Cloud{}
	reg := provider.Handlers(cloud.Provider())

	repo := reconcile(t, reg, resource.KindRegistry, "app", resource.Attrs{})
	url := str(t, repo.Outputs, "url")
	if want := "123456789012.dkr.ecr.us-east-1.amazonaws.com/app"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}

	img := reconcile(t, reg, resource.KindImage, "app-image", resource.Attrs{
		"context":        cty.StringVal("./app"),
		"repository_url": cty.StringVal(url),
	})
	if got, want := str(t, img.Outputs, "uri"), url+":latest"; got != want {
		t.Errorf("uri = %q, want %q", got, want)
	}
	if str(t, img.Outputs, "digest") == "" {
		t.Error("digest not set")
	}

	again := reconcile(t, reg, resource.KindRegistry, "app", resource.Attrs{})
	if diff := cmp.Diff(again.Outputs, repo.Outputs, cmp.Comparer(cty.Value.RawEquals)); diff != "" {
		t.Errorf("Outputs changed on second reconcile (-got +want)\n%s", diff)
	}
}

func TestHandlers_table(t *testing.T) {
	tests := []struct {
		name    string
		inputs  resource.Attrs
		wantErr bool
	}{
		{
			"Minimal",
			resource.Attrs{"hash_key": cty.StringVal("id")},
			false,
		},
		{
			"Index",
			resource.Attrs{
				"hash_key":   cty.StringVal("id"),
				"attributes": resource.StringMapVal(map[string]string{"id": "S", "email": "S"}),
				"indexes":    resource.StringMapVal(map[string]string{"EmailIndex": "email"}),
				"tags":       resource.StringMapVal(map[string]string{"Project": "Diversitus"}),
			},
			false,
		},
		{
			"UndeclaredIndexKey",
			resource.Attrs{
				"hash_key": cty.StringVal("id"),
				"indexes":  resource.StringMapVal(map[string]string{"EmailIndex": "email"}),
			},
			true,
		},
		{
			"MissingHashKey",
			resource.Attrs{},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := provider.Handlers((&mock.Cloud{}).Provider())
			h, _ := reg.Handler(resource.KindTable)
			resp, err := h.Reconcile(context.Background(), &resource.Request{
				Spec:   resource.Spec{Kind: resource.KindTable, Name: "users"},
				Inputs: tt.inputs,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reconcile() error = %v, wantErr %t", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got, want := str(t, resp.Outputs, "arn"), "arn:aws:dynamodb:us-east-1:123456789012:table/users"; got != want {
				t.Errorf("arn = %q, want %q", got, want)
			}
		})
	}
}

func TestHandlers_policy(t *testing.T) {
	cloud := &mock.Cloud{}
	reg := provider.Handlers(cloud.Provider())

	resp := reconcile(t, reg, resource.KindPolicy, "task-role", resource.Attrs{
		"policy_name": cty.StringVal("tables"),
		"actions":     resource.StringList([]string{"dynamodb:Scan", "dynamodb:Query"}),
		"resources":   cty.StringVal("arn:aws:dynamodb:us-east-1:123456789012:table/jobs"),
	})
	if got, want := str(t, resp.Outputs, "role_arn"), "arn:aws:iam::123456789012:role/task-role"; got != want {
		t.Errorf("role_arn = %q, want %q", got, want)
	}

	doc, ok := cloud.Policy("task-role", "tables")
	if !ok {
		t.Fatal("Inline policy not attached")
	}
	want := `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":["dynamodb:Scan","dynamodb:Query"],"Resource":"arn:aws:dynamodb:us-east-1:123456789012:table/jobs"}]}`
	if doc != want {
		t.Errorf("Policy document\nGot:  %s\nWant: %s", doc, want)
	}

	h, _ := reg.Handler(resource.KindPolicy)
	_, err := h.Reconcile(context.Background(), &resource.Request{
		Spec:   resource.Spec{Kind: resource.KindPolicy, Name: "bad"},
		Inputs: resource.Attrs{"actions": cty.StringVal("s3:GetObject")},
	})
	if err == nil {
		t.Error("Want error for actions without resources")
	}
}

func TestHandlers_certificateValidation(t *testing.T) {
	cloud := &mock.Cloud{PendingPolls: 1}
	reg := provider.Handlers(cloud.Provider())
	ctx := context.Background()

	zone := reconcile(t, reg, resource.KindZone, "zone", resource.Attrs{"domain": cty.StringVal("example.com")})
	cert := reconcile(t, reg, resource.KindCertificate, "cert", resource.Attrs{"domain": cty.StringVal("example.com")})

	resp := reconcile(t, reg, resource.KindValidationRecord, "cert-validation", resource.Attrs{
		"zone_id":         zone.Outputs["id"],
		"certificate_arn": cert.Outputs["arn"],
		"record_name":     cert.Outputs["record_name"],
		"record_type":     cert.Outputs["record_type"],
		"record_value":    cert.Outputs["record_value"],
	})
	v := resp.Validation
	if v == nil {
		t.Fatal("Validation not set")
	}
	if got, want := v.Challenge.ExpectedFQDN, str(t, cert.Outputs, "record_name"); got != want {
		t.Errorf("ExpectedFQDN = %q, want %q", got, want)
	}
	if n := len(cloud.EventsFor("record")); n != 0 {
		t.Fatalf("Record published before validation, got %d events", n)
	}

	poll := func() resource.ValidationStatus {
		t.Helper()
		s, err := v.Poll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	if s := poll(); s != resource.ValidationPending {
		t.Errorf("Status before publish = %s, want pending", s)
	}
	if err := v.Publish(ctx, v.Challenge); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, ok := cloud.Record(str(t, zone.Outputs, "id"), v.Challenge.RecordName, "CNAME"); !ok {
		t.Error("Challenge record not published")
	}
	if s := poll(); s != resource.ValidationPending {
		t.Errorf("First status after publish = %s, want pending", s)
	}
	if s := poll(); s != resource.ValidationSuccess {
		t.Errorf("Second status after publish = %s, want success", s)
	}
}

func TestHandlers_dnsRecord(t *testing.T) {
	tests := []struct {
		name    string
		inputs  resource.Attrs
		want    provider.RecordSpec
		wantErr bool
	}{
		{
			"Alias",
			resource.Attrs{
				"name":          cty.StringVal("example.com"),
				"alias_name":    cty.StringVal("lb.elb.amazonaws.com"),
				"alias_zone_id": cty.StringVal("Z35SXDOTRQ7X7K"),
			},
			provider.RecordSpec{
				Name: "example.com",
				Type: "A",
				Alias: &provider.Alias{
					Name:                 "lb.elb.amazonaws.com",
					ZoneID:               "Z35SXDOTRQ7X7K",
					EvaluateTargetHealth: true,
				},
			},
			false,
		},
		{
			"Values",
			resource.Attrs{
				"name":   cty.StringVal("www.example.com"),
				"type":   cty.StringVal("CNAME"),
				"values": cty.StringVal("example.com"),
				"ttl":    cty.NumberIntVal(60),
			},
			provider.RecordSpec{
				Name:   "www.example.com",
				Type:   "CNAME",
				Values: []string{"example.com"},
				TTL:    60,
			},
			false,
		},
		{
			"NoTarget",
			resource.Attrs{"name": cty.StringVal("example.com")},
			provider.RecordSpec{},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloud := &mock.Cloud{}
			reg := provider.Handlers(cloud.Provider())
			zone := reconcile(t, reg, resource.KindZone, "zone", resource.Attrs{"domain": cty.StringVal("example.com")})
			zoneID := str(t, zone.Outputs, "id")

			inputs := resource.Attrs{"zone_id": cty.StringVal(zoneID)}
			for k, v := range tt.inputs {
				inputs[k] = v
			}
			h, _ := reg.Handler(resource.KindDNSRecord)
			resp, err := h.Reconcile(context.Background(), &resource.Request{
				Spec:   resource.Spec{Kind: resource.KindDNSRecord, Name: "record"},
				Inputs: inputs,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reconcile() error = %v, wantErr %t", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got, want := str(t, resp.Outputs, "fqdn"), tt.want.Name+"."; got != want {
				t.Errorf("fqdn = %q, want %q", got, want)
			}
			got, ok := cloud.Record(zoneID, tt.want.Name, tt.want.Type)
			if !ok {
				t.Fatal("Record not published")
			}
			tt.want.ZoneID = zoneID
			if diff := cmp.Diff(got, tt.want); diff != "" {
				t.Errorf("Record (-got +want)\n%s", diff)
			}
		})
	}
}

func TestHandlers_service(t *testing.T) {
	cloud := &mock.Cloud{}
	reg := provider.Handlers(cloud.Provider())

	inputs := resource.Attrs{
		"cluster":          cty.StringVal("diversitus"),
		"image":            cty.StringVal("repo/app:latest"),
		"environment":      resource.StringMapVal(map[string]string{"AWS_REGION": "us-east-1"}),
		"task_role_arn":    cty.StringVal("arn:aws:iam::123456789012:role/task"),
		"target_group_arn": cty.StringVal("tg"),
		"subnets":          resource.StringList([]string{"subnet-a", "subnet-b"}),
		"assign_public_ip": cty.True,
	}
	first := reconcile(t, reg, resource.KindService, "app", inputs)
	second := reconcile(t, reg, resource.KindService, "app", inputs)
	if diff := cmp.Diff(second.Outputs, first.Outputs, cmp.Comparer(cty.Value.RawEquals)); diff != "" {
		t.Errorf("Outputs changed on second reconcile (-got +want)\n%s", diff)
	}

	got, ok := cloud.Service("app")
	if !ok {
		t.Fatal("Service not created")
	}
	want := provider.ServiceSpec{
		Cluster: "diversitus",
		Name:    "app",
		Task: provider.TaskSpec{
			Family:        "app",
			ContainerName: "app",
			Image:         "repo/app:latest",
			CPU:           256,
			Memory:        512,
			Port:          8080,
			Environment:   map[string]string{"AWS_REGION": "us-east-1"},
			TaskRoleARN:   "arn:aws:iam::123456789012:role/task",
		},
		DesiredCount:   1,
		TargetGroupARN: "tg",
		Subnets:        []string{"subnet-a", "subnet-b"},
		AssignPublicIP: true,
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Service (-got +want)\n%s", diff)
	}

	events := cloud.EventsFor("service")
	wantEvents := []mock.Event{
		{Op: "create", Service: "service", Name: "app"},
		{Op: "noop", Service: "service", Name: "app"},
	}
	if diff := cmp.Diff(events, wantEvents); diff != "" {
		t.Errorf("Events (-got +want)\n%s", diff)
	}
}
