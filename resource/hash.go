package resource

import (
	"encoding/hex"
	"hash/fnv"

	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Hash computes a stable digest of a set of attributes. Two attribute sets with
// equal values produce the same hash, regardless of map ordering.
//
// The hash is suitable for idempotency tokens and change detection. It is not
// a cryptographic hash.
//
// Panics if the attributes contain unknown values; attributes passed to a
// handler are always fully resolved.
//
// Null attributes are ignored.
func Hash(attrs Attrs) string {
	set := make(Attrs, len(attrs))
	for k, v := range attrs {
		if !v.IsNull() {
			set[k] = v
		}
	}
	obj := set.Object()
	b, err := ctyjson.Marshal(obj, obj.Type())
	if err != nil {
		panic(err)
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
