// Package admin serves the administrative HTTP interface: a small dashboard,
// JSON endpoints for reading and editing the blacklist, the recent log tail
// and Prometheus metrics.
package admin
