// Package flaskcompat checks a running deployment against the wire behavior
// of the Flask services it replaces. Set COMPAT_BASE_URL (emotion server) and
// COMPAT_ATTENTION_URL (attention server) to run; unreachable servers are skipped.
package flaskcompat
