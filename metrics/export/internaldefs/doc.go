// Package internaldefs holds the shared counter definitions used by the
// Prometheus and OTel exporters so both render identical metric names.
package internaldefs
