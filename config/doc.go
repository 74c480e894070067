// Package config loads the perfstreams service configuration from layered
// JSON or YAML files and environment variables.
//
// # Layers
//
// Load starts from Default and merges each layer added with AddLayer in
// order. Merging is key by key, so a layer only needs the keys it changes:
//
//	# base.yaml
//	reporter:
//	  event_buffer_size: 300
//	  flush_interval: 500ms
//	publish:
//	  enabled: true
//	  subject_prefix: perf.prod
//
//	loader := config.NewLoader()
//	loader.AddLayer("base.yaml")
//	loader.AddLayer("site.json")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// The file type is chosen by extension (.json, .yaml, .yml). Files larger
// than 10MB, nested deeper than 32 levels, or climbing out of the working
// directory with a relative path are rejected.
//
// # Environment
//
// PERFSTREAMS_* variables override the merged result, for example
// PERFSTREAMS_NATS_URL, PERFSTREAMS_NATS_TOKEN, PERFSTREAMS_PUBLISH_ENABLED,
// PERFSTREAMS_FILE_PATH, PERFSTREAMS_UDP_PORT and PERFSTREAMS_METRICS_PORT.
// An unparseable boolean or integer fails Load.
//
// # Durations
//
// Duration fields accept Go duration strings ("250ms", "2s") plus a day
// suffix ("7d"). Bare numbers are nanoseconds.
//
// # Validation
//
// Validate checks the reporter and every enabled component, using each
// component's own Validate. Disabled components are ignored, so a default
// config with a bad sink path still validates until that sink is enabled.
package config
