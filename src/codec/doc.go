// Package codec reads and writes the flat key-value text messages exchanged
// on the ingestion and egress sockets.
//
// The format looks like a single-level JSON object but is not JSON: the
// characters '{', '}', '"', space, tab and newline are skipped wherever they
// appear, ':' ends a key and ',' ends a value. There is no escaping, nesting or
// array support. A key without a terminated value at the end of the input is
// discarded, and so is any key whose value is empty.
package codec
