// Package hashkey produces deterministic string hashes of arbitrary values
// for use as cache and memoization keys. It is collision-tolerant by design:
// callers use it to detect change, not to prove identity.
package hashkey

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
)

// Hash returns a stable hash of v as the base-10 rendering of an unsigned
// 32-bit FNV-1a digest.
//
// Primitive values take a direct path. Composite values are JSON-serialized
// first; values JSON cannot represent (self-referential structures, channels,
// functions) fall back to their default string coercion, where collisions are
// possible and accepted.
func Hash(v any) string {
	switch x := v.(type) {
	case nil:
		return sum("null")
	case string:
		return sum("s:" + x)
	case bool:
		return sum("b:" + strconv.FormatBool(x))
	case int:
		return sum("n:" + strconv.FormatInt(int64(x), 10))
	case int8:
		return sum("n:" + strconv.FormatInt(int64(x), 10))
	case int16:
		return sum("n:" + strconv.FormatInt(int64(x), 10))
	case int32:
		return sum("n:" + strconv.FormatInt(int64(x), 10))
	case int64:
		return sum("n:" + strconv.FormatInt(x, 10))
	case uint:
		return sum("n:" + strconv.FormatUint(uint64(x), 10))
	case uint8:
		return sum("n:" + strconv.FormatUint(uint64(x), 10))
	case uint16:
		return sum("n:" + strconv.FormatUint(uint64(x), 10))
	case uint32:
		return sum("n:" + strconv.FormatUint(uint64(x), 10))
	case uint64:
		return sum("n:" + strconv.FormatUint(x, 10))
	case float32:
		return sum("f:" + strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		return sum("f:" + strconv.FormatFloat(x, 'g', -1, 64))
	}

	data, err := json.Marshal(v)
	if err != nil {
		// Best-effort fallback for unserializable values. The type name is
		// the only representation guaranteed not to recurse into a cycle, so
		// distinct values of one type collide here.
		return sum(fmt.Sprintf("%T", v))
	}
	return sum(string(data))
}

// Tuple hashes an ordered sequence of values as a single key.
// It is used to key memo tables on dependency tuples.
func Tuple(vs ...any) string {
	h := fnv.New32a()
	for _, v := range vs {
		h.Write([]byte(Hash(v)))
		h.Write([]byte{'|'})
	}
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}

func sum(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}
