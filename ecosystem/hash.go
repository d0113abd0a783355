// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

// paramsHash computes a stable hash for a param list. Plain data
// containers and primitives are hashed structurally (via a canonical,
// deterministic encoding — encoding/json, which unlike encoding/gob
// sorts map keys, guaranteeing two structurally-equal maps/structs hash
// identically regardless of construction order); functions, channels
// and other opaque host objects are hashed by pointer identity, per
// SPEC_FULL.md / Design Notes §9 ("users must not use anonymous
// closures as parameters").
func paramsHash(params []interface{}) uint64 {
	if len(params) == 0 {
		return 0
	}
	digest := xxhash.New()
	for i, p := range params {
		fmt.Fprintf(digest, "|%d:", i)
		writeParamHash(digest, p)
	}
	return digest.Sum64()
}

func writeParamHash(digest *xxhash.Digest, p interface{}) {
	if p == nil {
		digest.Write([]byte("nil"))
		return
	}
	switch reflect.ValueOf(p).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		fmt.Fprintf(digest, "identity:%p", p)
		return
	}
	if b, err := json.Marshal(p); err == nil {
		digest.Write(b)
		return
	}
	// Not JSON-representable (e.g. a struct embedding a func field):
	// fall back to identity, same policy as opaque host objects.
	fmt.Fprintf(digest, "identity:%p", p)
}

// sameParams is the deep-equality guard used after a paramsHash lookup
// hits an existing instance: it defends Invariant 1 ("two equal keys
// never yield two simultaneous instances") against the vanishingly rare
// 64-bit hash collision by falling back to a full structural compare.
func sameParams(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameParam(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sameParam compares a single param pair, mirroring writeParamHash's
// kind switch: opaque values (func/chan/unsafe pointer) are compared by
// identity rather than handed to cmp.Equal, which reports any two
// non-nil funcs as unequal, even the same func.
func sameParam(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if vb.Kind() != va.Kind() {
			return false
		}
		return va.Pointer() == vb.Pointer()
	}
	if k := vb.Kind(); k == reflect.Func || k == reflect.Chan || k == reflect.UnsafePointer {
		return false
	}
	return cmp.Equal(a, b, cmp.Exporter(func(reflect.Type) bool { return true }))
}
