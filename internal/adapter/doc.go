/*
Package adapter provides the central orchestration component that integrates all ShadowFS subsystems.

The Adapter is the daemon-level coordination point: it builds the Rule
Engine, Transform Pipeline, Layer Manager (and its Virtual Layers), and
multi-level Cache from a Configuration, wires them into the Resolver,
and then brings up the kernel-facing mount, the control-plane HTTP
server, and the metrics/health surfaces around it.

# Architecture Role

The adapter acts as the "conductor" in the ShadowFS orchestra:

	┌─────────────────────────────────────────────┐
	│                 Client Apps                 │
	│            (ls, cp, cat, etc.)              │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            Kernel VFS/FUSE                  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              ADAPTER LAYER                  │ ← This Package
	│  • Component Orchestration                  │
	│  • Lifecycle Management                     │
	│  • Configuration Integration                │
	│  • Error Coordination                       │
	└─────────────────────────────────────────────┘
	        │         │          │         │
	┌───────┴───┐ ┌───┴────┐ ┌───┴────┐ ┌──┴────────┐
	│ Resolver  │ │ Cache  │ │ Layers │ │ Metrics   │
	│ (Routing) │ │(L1-L3) │ │(Index) │ │ (Monitor) │
	└───────────┘ └────────┘ └────────┘ └───────────┘

# Component Integration

The Adapter wires together:

Layer Manager and Virtual Layers:
Owns the ordered source root list (sorted by ascending priority value),
the enumerated backing file set, and every configured classifier, date,
tag, and hierarchical layer index.

Rule Engine:
The ordered include/exclude predicate list evaluated first-match-wins on
every resolve; mutable at runtime through the control plane.

Transform Pipeline:
One ordered stage list assembled from selector-carrying transform
declarations plus transforms attached to glob rules, bounded by the
configured limits (input size, output size, wall clock).

Multi-Level Cache:
L1 attribute, L2 raw-content, and L3 transformed-content levels, sized
and TTL'd from the cache configuration section.

Ambient surfaces:
Prometheus metrics, the control-plane HTTP server, the health tracker
with its periodic component checks, and the memory monitor tracking the
transform pipeline's in-flight budget.

# Lifecycle Management

Startup sequence:
 1. Configuration validation
 2. Metrics collector initialization
 3. Rule engine, transform pipeline, cache store construction
 4. Layer construction and registration
 5. Initial backing scan (retry + circuit-breaker guarded)
 6. Index build for every layer
 7. Platform FUSE mount
 8. Memory monitor, control-plane server, health checks

Shutdown sequence:
 1. FUSE unmount
 2. Control-plane server shutdown
 3. Memory monitor and metrics collector shutdown

Start and Stop are protected by the adapter's own mutex; double Start
and Stop-before-Start fail with an error rather than panicking.

# Usage Example

Basic adapter lifecycle:

	cfg := config.NewDefault()
	cfg.Sources = []config.SourceConfig{{Name: "docs", Path: "/srv/docs", Priority: 1}}

	a, err := adapter.New(ctx, "/mnt/shadow", cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := a.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer a.Stop(ctx)

	// Filesystem is now mounted; standard POSIX operations work:
	// ls /mnt/shadow
	// cat /mnt/shadow/report.py

# Error Handling and Recovery

Component failures are isolated: a flapping source root trips its own
circuit breaker without failing reads from the others, transform
failures degrade to pass-through unless fatal-configured, and health
check failures surface through the control plane without unmounting.
Startup failures clean up partially initialized components and return
a wrapped error naming the component that failed.

# Thread Safety

All public methods can be called concurrently. Reload and the periodic
source health check share the same scan path (rescan, guarded by the
scan retry policy and circuit breaker). The breaker does not serialize
them: two scans can overlap, and each swaps its result into the Layer
Manager under the manager's write lock. Resolver traffic continues
against the previous index until the rebuilt one is swapped in.
*/
package adapter
