// Package normalisers turns submitted content into the plain text the
// analysis stages read. Each normaliser handles a set of MIME types named in
// the item's content_type metadata; the Registry picks the best match.
//
// Normalisers are registered with the Registry at startup.
package normalisers
