// Package prometheus exposes engine counters over HTTP in the Prometheus text
// format. Counters are named goidentity_*_total and session resolution
// latency is goidentity_resolve_latency_seconds.
//
// Nothing is registered globally. Mount Exporter.Handler where scrapes
// should land.
package prometheus
