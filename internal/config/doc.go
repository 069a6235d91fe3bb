// Package config loads and validates the ShadowFS configuration document.
//
// Configuration is assembled from, in increasing precedence: compiled-in
// defaults (NewDefault), a YAML file (LoadFromFile), then environment
// variables (LoadFromEnv).
//
// # Configuration file format
//
//	global:
//	  log_level: INFO
//	  mount_point: /mnt/shadowfs
//	  metrics_port: 9091
//	  health_port: 9092
//
//	sources:
//	  - name: docs
//	    path: /srv/docs
//	    priority: 1
//	    read_only: true
//
//	rules:
//	  - name: hide-tmp
//	    pattern: "*.tmp"
//	    pattern_kind: glob
//	    action: exclude
//
//	transforms:
//	  - name: render-md
//	    selector: "**/*.md"
//	    kind: markdown_html
//	  - name: gzip-logs
//	    kind: gzip
//
//	layers:
//	  - name: by-type
//	    mount_point: /by-type
//	    kind: classifier
//	    source_root: docs
//
//	cache:
//	  l1_max_entries: 10000
//	  l1_ttl: 60s
//	  l2_max_size: 512MB
//	  l3_max_size: 512MB
//
//	limits:
//	  max_file_size: 1GB
//	  max_transform_output: 100MB
//	  max_transform_wall_time: 30s
//	  max_symlink_depth: 10
//
// A transform carrying its own selector glob applies wherever the glob
// matches; a selector-less transform (gzip-logs above) applies only where
// a rule lists it in its transforms, inheriting that rule's pattern. On a
// top-level name collision across sources, the source with the lower
// priority value wins.
//
// # Environment variables
//
//	SHADOWFS_LOG_LEVEL=DEBUG
//	SHADOWFS_MOUNT_POINT=/mnt/shadowfs
//	SHADOWFS_METRICS_PORT=9091
//	SHADOWFS_MAX_CONCURRENCY=64
//	SHADOWFS_CACHE_L1_TTL=60s
//	SHADOWFS_WRITE_THROUGH=false
//	SHADOWFS_METADATA_CACHING=true
//
// Validate cross-checks that every rule's transform references and every
// layer's source-root reference resolve to a declared entry, in addition
// to the usual scalar range checks.
package config
