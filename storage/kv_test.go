package storage_test

import (
	"context"
	"testing"

	"github.com/diversitus/infra/storage"
	"github.com/diversitus/infra/storage/kvbackend"
	"github.com/google/go-cmp/cmp"
)

func TestKV(t *testing.T) {
	kv := &storage.KV{
		Backend:   &kvbackend.Memory{},
		Namespace: "diversitus",
	}
	ctx := context.Background()

	// Empty
	_, ok, err := kv.Lookup(ctx, "companies", "Acme")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if ok {
		t.Fatal("Lookup() found identifier in empty store")
	}

	// Natural keys may contain slashes.
	keys := map[string]string{
		"Acme":          "id-1",
		"Frontend/Web":  "id-2",
		"Ops & Support": "id-3",
	}
	for k, id := range keys {
		if err := kv.Store(ctx, "companies", k, id); err != nil {
			t.Fatalf("Store(%q) error = %v", k, err)
		}
	}
	if err := kv.Store(ctx, "jobs", "Acme", "job-1"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	id, ok, err := kv.Lookup(ctx, "companies", "Frontend/Web")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !ok || id != "id-2" {
		t.Errorf("Lookup() = %q, %t; want %q, true", id, ok, "id-2")
	}

	got, err := kv.List(ctx, "companies")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if diff := cmp.Diff(got, keys); diff != "" {
		t.Errorf("List() (-got, +want)\n%s", diff)
	}

	// Update
	if err := kv.Store(ctx, "companies", "Acme", "id-4"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	id, _, _ = kv.Lookup(ctx, "companies", "Acme")
	if id != "id-4" {
		t.Errorf("Updated id = %q, want %q", id, "id-4")
	}

	// Forget
	if err := kv.Forget(ctx, "companies", "Acme"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if err := kv.Forget(ctx, "companies", "Acme"); err != nil {
		t.Errorf("Forget() twice error = %v", err)
	}
	if _, ok, _ := kv.Lookup(ctx, "companies", "Acme"); ok {
		t.Error("Identifier exists after Forget()")
	}

	jobs, err := kv.List(ctx, "jobs")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if diff := cmp.Diff(jobs, map[string]string{"Acme": "job-1"}); diff != "" {
		t.Errorf("List(jobs) (-got, +want)\n%s", diff)
	}
}

func TestKV_invalidNamespace(t *testing.T) {
	for _, ns := range []string{"", "a/b"} {
		kv := &storage.KV{Backend: &kvbackend.Memory{}, Namespace: ns}
		if err := kv.Store(context.Background(), "companies", "Acme", "id"); err == nil {
			t.Errorf("Store() with namespace %q did not return an error", ns)
		}
	}
}
