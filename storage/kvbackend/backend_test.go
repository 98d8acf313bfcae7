package kvbackend

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/diversitus/infra/storage"
	"github.com/pkg/errors"
)

func TestBackend_io(t *testing.T) {
	tests := []struct {
		name   string
		create func(t *testing.T) (store storage.KVBackend, done func())
	}{
		{
			"Memory",
			func(*testing.T) (storage.KVBackend, func()) {
				return &Memory{}, func() {}
			},
		},
		{
			"Bolt",
			func(t *testing.T) (storage.KVBackend, func()) {
				dir, err := ioutil.TempDir("", "bolt-test")
				if err != nil {
					t.Fatal(err)
				}
				bolt, err := NewBoltWithFile(dir + "/nested/state.db")
				if err != nil {
					t.Fatal(err)
				}
				return bolt, func() {
					if err := bolt.Close(); err != nil {
						t.Errorf("close db: %v", err)
					}
					if err := os.RemoveAll(dir); err != nil {
						t.Errorf("remove db dir: %v", err)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be, done := tt.create(t)
			defer done()

			ctx := context.Background()

			// Get non-existing
			_, err := be.Get(ctx, "ns/companies/acme")
			if errors.Cause(err) != storage.ErrNotFound {
				t.Errorf("Get non-existing key; want error = %v, got = %v", storage.ErrNotFound, err)
			}

			// Create
			if err = be.Put(ctx, "ns/companies/acme", []byte("1")); err != nil {
				t.Fatalf("Create error = %v", err)
			}
			assertValue(t, be, "ns/companies/acme", []byte("1"))

			// Update
			if err = be.Put(ctx, "ns/companies/acme", []byte("2")); err != nil {
				t.Fatalf("Update error = %v", err)
			}
			assertValue(t, be, "ns/companies/acme", []byte("2"))

			// Create others
			if err = be.Put(ctx, "ns/companies/globex", []byte("3")); err != nil {
				t.Fatalf("Create another error = %v", err)
			}
			if err = be.Put(ctx, "ns/jobs/engineer", []byte("4")); err != nil {
				t.Fatalf("Create in other bucket error = %v", err)
			}
			if err = be.Put(ctx, "ns/companies/nested/key", []byte("5")); err != nil {
				t.Fatalf("Create in nested bucket error = %v", err)
			}

			// Scan non-existing
			assertScan(t, be, "nonexisting", nil)

			// Scan existing
			assertScan(t, be, "ns/companies", map[string][]byte{
				"ns/companies/acme":   []byte("2"),
				"ns/companies/globex": []byte("3"),
			})

			// Delete non-existing key
			err = be.Delete(ctx, "ns/companies/nonexisting")
			if errors.Cause(err) != storage.ErrNotFound {
				t.Errorf("Delete() nonexisting error = %v, want %v", err, storage.ErrNotFound)
			}

			if err = be.Delete(ctx, "ns/companies/acme"); err != nil {
				t.Errorf("Delete() error = %v", err)
			}

			_, err = be.Get(ctx, "ns/companies/acme")
			if errors.Cause(err) != storage.ErrNotFound {
				t.Errorf("Get deleted key; want error = %v, got = %v", storage.ErrNotFound, err)
			}
		})
	}
}

func TestBolt_locked(t *testing.T) {
	dir, err := ioutil.TempDir("", "bolt-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "state.db")
	first, err := NewBoltWithFile(file)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	second, err := NewBoltWithFile(file)
	if err == nil {
		second.Close()
		t.Fatal("Opening a locked file did not return an error")
	}
	if !strings.Contains(err.Error(), "locked by another deploy") {
		t.Errorf("Error = %v", err)
	}
}

func TestBolt_cancelled(t *testing.T) {
	dir, err := ioutil.TempDir("", "bolt-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	b, err := NewBoltWithFile(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Put(ctx, "ns/companies/acme", []byte("1")); err != context.Canceled {
		t.Errorf("Put() error = %v, want %v", err, context.Canceled)
	}
	if _, err := b.Get(context.Background(), "ns/companies/acme"); errors.Cause(err) != storage.ErrNotFound {
		t.Errorf("Get() error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestMemory_copy(t *testing.T) {
	m := &Memory{}
	ctx := context.Background()
	val := []byte("abc")
	if err := m.Put(ctx, "a/b", val); err != nil {
		t.Fatal(err)
	}
	val[0] = 'x'
	got, _ := m.Get(ctx, "a/b")
	if string(got) != "abc" {
		t.Errorf("Stored value modified through input slice: %q", got)
	}
	got[0] = 'y'
	again, _ := m.Get(ctx, "a/b")
	if string(again) != "abc" {
		t.Errorf("Stored value modified through returned slice: %q", again)
	}
}

func TestMemory_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &Memory{}
	if err := m.Put(ctx, "a/b", nil); err != context.Canceled {
		t.Errorf("Put() error = %v, want %v", err, context.Canceled)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func assertValue(t *testing.T, be storage.KVBackend, key string, want []byte) {
	t.Helper()
	got, err := be.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Get\nGot:  %q\nWant: %q", got, want)
	}
}

func assertScan(t *testing.T, be storage.KVBackend, bucket string, want map[string][]byte) {
	t.Helper()
	got, err := be.Scan(context.Background(), bucket)
	if err != nil {
		t.Fatalf("Scan error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Scan() got %d, want %d", len(got), len(want))
	}
	if want == nil && len(got) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Scan results\nGot:  %#v\nWant: %#v", got, want)
	}
}
