// Package lead defines the core types shared across the harvesting, extraction,
// challenge-resolution, and enrichment stages of the leadscout pipeline.
package lead
