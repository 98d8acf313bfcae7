package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// The KVBackend is used for persisting key-value data.
//
// Keys are slash separated paths. The part of the key up to the last slash is
// the bucket the key belongs to.
type KVBackend interface {
	// Put creates or updates a key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the given key. Returns ErrNotFound if the given key does not
	// exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete deletes a key. Returns ErrNotFound if the given key does not exist.
	Delete(ctx context.Context, key string) error

	// Scan returns a key-value map of all keys in the given bucket.
	Scan(ctx context.Context, bucket string) (map[string][]byte, error)
}

// KV persists the identifiers assigned to seeded records, keyed by the
// natural key of the record. Identifiers are scoped to a namespace, typically
// the stack name, and a table.
type KV struct {
	Backend   KVBackend // Backend to use for persisting data.
	Namespace string
}

// an entry is stored for every identifier, encoded as json.
type entry struct {
	ID      string    `json:"id"`
	Key     string    `json:"key"`
	Updated time.Time `json:"updated"`
}

func (kv *KV) bucket(table string) (string, error) {
	if kv.Namespace == "" || strings.Contains(kv.Namespace, "/") {
		return "", errors.Errorf("invalid namespace %q", kv.Namespace)
	}
	if table == "" {
		return "", errors.New("table not set")
	}
	return fmt.Sprintf("%s/%s", kv.Namespace, url.PathEscape(table)), nil
}

// Lookup returns the identifier stored for a natural key. The boolean is
// false if no identifier has been stored.
func (kv *KV) Lookup(ctx context.Context, table, key string) (string, bool, error) {
	b, err := kv.bucket(table)
	if err != nil {
		return "", false, err
	}
	data, err := kv.Backend.Get(ctx, b+"/"+url.PathEscape(key))
	if errors.Cause(err) == ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get")
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", false, errors.Wrapf(err, "unmarshal identifier for %q", key)
	}
	return e.ID, true, nil
}

// Store creates or updates the identifier for a natural key.
func (kv *KV) Store(ctx context.Context, table, key, id string) error {
	b, err := kv.bucket(table)
	if err != nil {
		return err
	}
	j, err := json.Marshal(entry{ID: id, Key: key, Updated: time.Now().UTC()})
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	if err := kv.Backend.Put(ctx, b+"/"+url.PathEscape(key), j); err != nil {
		return errors.Wrap(err, "store")
	}
	return nil
}

// Forget deletes the identifier for a natural key. No-op if no identifier is
// stored.
func (kv *KV) Forget(ctx context.Context, table, key string) error {
	b, err := kv.bucket(table)
	if err != nil {
		return err
	}
	err = kv.Backend.Delete(ctx, b+"/"+url.PathEscape(key))
	if err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "delete")
	}
	return nil
}

// List returns all identifiers stored for a table, keyed by natural key.
func (kv *KV) List(ctx context.Context, table string) (map[string]string, error) {
	b, err := kv.bucket(table)
	if err != nil {
		return nil, err
	}
	values, err := kv.Backend.Scan(ctx, b)
	if err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		var e entry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, errors.Wrapf(err, "unmarshal %s", k)
		}
		out[e.Key] = e.ID
	}
	return out, nil
}
