// Package variant provides the native-side dynamic value type exchanged with
// the scripting runtime.
//
// A Variant holds one of:
//
//	Kind        Go representation
//	──────────────────────────────
//	Null        -
//	Bool        bool
//	Int         int64
//	Float       float64
//	String      String (encoding-tagged, possibly lazy)
//	Object      Object (shared, reference-counted)
//
// # Strings
//
// String keeps the encoding of its source. Strings produced by the script
// side are lazy views over the engine value and are transcoded only when the
// native side asks for a specific encoding:
//
//	s := variant.Lazy(jsValue, variant.UTF16LE)
//	b, err := s.Bytes(variant.Latin1)
//
// Short values can be transcoded into a pooled fixed-size buffer:
//
//	p, err := s.Pooled(variant.UTF8)
//	defer p.Release()
//	use(p.Bytes())
//
// # Identifiers
//
// Identifier is an interned name used for property and method lookups. Two
// identifiers with equal text compare equal with ==.
//
// # Thread Safety
//
// Variant and String values are immutable and safe to share. The objects a
// Variant references follow their own threading rules.
package variant
