package kvbackend

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/diversitus/infra/storage"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Bolt keeps seed identifiers in a local bbolt file. Each namespace and table
// pair gets its own bolt bucket, holding one entry per seeded record.
//
// A bolt file can only be opened by one process at a time. Deploys from more
// than one machine should use the DynamoDB backend instead.
type Bolt struct {
	db *bolt.DB
}

// DefaultBoltFile returns the default location of the identifier file,
// ~/.diversitus/state.db.
func DefaultBoltFile() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(u.HomeDir, ".diversitus", "state.db"), nil
}

// NewBolt opens the identifier file at the default location.
func NewBolt() (*Bolt, error) {
	file, err := DefaultBoltFile()
	if err != nil {
		return nil, err
	}
	return NewBoltWithFile(file)
}

// NewBoltWithFile opens the identifier file at path, creating it and its
// parent directories as needed. Opening fails after 3 seconds if another
// deploy holds the file.
func NewBoltWithFile(path string) (*Bolt, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrapf(err, "create identifier directory %s", dir)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.Errorf("identifier file %s is locked by another deploy", path)
		}
		return nil, errors.Wrapf(err, "open identifier file %s", path)
	}
	return &Bolt{db: db}, nil
}

// Close releases the file lock.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Put stores the identifier entry for key, replacing any previous entry.
func (b *Bolt) Put(ctx context.Context, key string, value []byte) error {
	table, name, err := b.split(ctx, key)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(name), value)
	})
	return errors.Wrapf(err, "store identifier %s", key)
}

// Get returns the identifier entry for key, or storage.ErrNotFound if the
// record has not been seeded.
func (b *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	table, name, err := b.split(ctx, key)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = b.db.View(func(tx *bolt.Tx) error {
		out = cloneBytes(lookup(tx, table, name))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read identifier %s", key)
	}
	if out == nil {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

// Delete forgets the identifier for key. Returns storage.ErrNotFound if there
// is nothing to forget.
func (b *Bolt) Delete(ctx context.Context, key string) error {
	table, name, err := b.split(ctx, key)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if lookup(tx, table, name) == nil {
			return storage.ErrNotFound
		}
		return errors.Wrapf(tx.Bucket([]byte(table)).Delete([]byte(name)), "forget identifier %s", key)
	})
}

// Scan returns every identifier entry stored for a namespace and table. The
// returned keys include the bucket prefix.
func (b *Bolt) Scan(ctx context.Context, bucket string) (map[string][]byte, error) {
	if strings.HasSuffix(bucket, "/") {
		return nil, errors.New("bucket should not contain trailing /")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			out[bucket+"/"+string(k)] = cloneBytes(v)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list identifiers in %s", bucket)
	}
	return out, nil
}

func (b *Bolt) split(ctx context.Context, key string) (table, name string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	return splitKey(key)
}

// lookup returns nil if the table bucket or the entry does not exist. The
// returned slice is only valid for the life of the transaction.
func lookup(tx *bolt.Tx, table, name string) []byte {
	bkt := tx.Bucket([]byte(table))
	if bkt == nil {
		return nil
	}
	v := bkt.Get([]byte(name))
	if len(v) == 0 {
		return nil
	}
	return v
}

func cloneBytes(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
