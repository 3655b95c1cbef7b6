// Package device parses, merges and caches device placement strings.
//
// A device string names a placement target with up to five components:
//
//	/job:<name>/replica:<n>/task:<n>/device:<TYPE>:<index|*>
//
// Any component may be omitted. The short forms "cpu:0", "/gpu:1" and
// "GPU" are accepted as well. Specs are immutable; Merge returns a new Spec
// where the fields present in the more specific operand win.
package device
