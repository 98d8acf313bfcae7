package kvbackend

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// InvalidKeyError is returned when a key cannot be split into a bucket and a
// name.
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %q: %s", e.Key, e.Reason)
}

// splitKey splits a key at the last slash. Everything before it is the
// bucket, the rest is the name within the bucket.
//
//   diversitus/jobs/Frontend%20Developer
//   ->
//   bucket: diversitus/jobs
//   name:   Frontend%20Developer
func splitKey(key string) (bucket, name string, err error) {
	switch {
	case strings.HasPrefix(key, "/"):
		err = &InvalidKeyError{Key: key, Reason: "starts with a slash"}
	case strings.HasSuffix(key, "/"):
		err = &InvalidKeyError{Key: key, Reason: "ends with a slash"}
	case !strings.Contains(key, "/"):
		err = &InvalidKeyError{Key: key, Reason: "no bucket"}
	}
	if err != nil {
		return "", "", errors.WithStack(err)
	}
	i := strings.LastIndex(key, "/")
	return key[:i], key[i+1:], nil
}
