// Package registry provides a generic thread-safe, insertion-ordered
// registry for values indexed by key.
//
// The hub keeps its extension containers here: Insert refuses a key that is
// already present, which is how duplicate extension names are rejected, and
// Values returns containers in registration order so that every fan-out
// walks them deterministically.
//
//	r := registry.New[string, *Container]()
//	if !r.Insert("com.example.ext", c) {
//	    return ErrDuplicateExtensionName
//	}
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Range iterates over a
// snapshot, allowing mutations during iteration.
package registry
