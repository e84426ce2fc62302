// Package main hosts the leadscout entrypoint.
//
// Without -query the binary serves the HTTP API (internal/api) on
// server.port: POST /v1/searches runs one search per request, bounded by the
// admission controller (admission.global concurrent requests overall,
// admission.per_identity per X-Client-ID). Each admitted request gets its own
// Chrome process, harvests candidate sites from the search engine, extracts
// phones and INNs from every site and enriches each INN from the registry.
//
// With -query the same pipeline runs once for the given query and the report
// is printed to stdout as JSON.
//
// Configuration comes from an optional YAML file and LEADSCOUT_* environment
// variables (e.g. LEADSCOUT_SERVER_PORT, LEADSCOUT_RESULTS_BACKEND). The solver
// key may also be supplied as RUCAPTCHA_API_KEY. Cloud Run's PORT overrides
// server.port.
package main
