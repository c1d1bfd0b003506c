// Package schema holds the registry of known attributes and the
// syntaxes that govern how their values are read, written,
// canonicalised, and compared.
//
// The registry is a sorted array, not a map: attributes are looked up
// by case-insensitive name via binary search, with an optional
// wildcard ("*") entry held outside the sorted range as the fallback
// descriptor. This mirrors how the attribute table is consulted on
// every comparison in the write and index paths, where insertion
// order must never affect lookup results.
package schema
