/*
Package types provides the core interfaces, data structures, and type definitions for ShadowFS.

This package serves as the foundation for the entire ShadowFS system, defining the contracts
between different components and establishing the data structures used throughout the codebase.

# Architecture Overview

ShadowFS follows a layered architecture with well-defined interfaces between components:

	┌─────────────────────────────────────────────┐
	│              FUSE Interface                 │
	│              (internal/fuse)                │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Resolver / Adapter Layer          │
	│     (internal/resolver, internal/adapter)   │
	└─────────────────────────────────────────────┘
	          │        │        │        │
	┌─────────┴───┐ ┌──┴──┐ ┌───┴───┐ ┌──┴──────┐
	│ Enumerator  │ │Cache│ │Layers │ │Metrics  │
	│ (Backing FS)│ │     │ │       │ │         │
	└─────────────┘ └─────┘ └───────┘ └─────────┘

# Core Interfaces

FileAttributes:
The read-only metadata view rule predicates and layer classifiers consume. FileInfo
implements it; tests substitute a synthetic implementation without touching a backing store.

MetricsCollector:
Enables comprehensive monitoring and observability with operation tracking, cache hit/miss
counters, and error reporting for Prometheus integration.

# Data Structures

Key data structures include:

FileInfo:
The arena-held metadata record for one backing or virtual entry: path, size, mode, mtime,
and the source root or layer it resolves through. Virtual layers hold index-based references
into the Layer Manager's FileInfo set rather than owning their own copies.

SourceRoot:
One configured backing directory tree with its read-only flag. Collision precedence is the
Layer Manager's list order, which internal/adapter derives by sorting the configured sources
on their ascending priority value.

Rule / Transform / VirtualLayer:
The declarative shapes read from configuration and turned into a rules.Engine, a
transform.Pipeline, and a set of internal/layers.Layer instances by the daemon at startup.

CacheStats:
Hit/miss/eviction counters and size/utilization figures reported per cache level by the
control plane's GET /stats.

# Thread Safety

Value types in this package (FileInfo, SourceRoot, CacheStats) are plain records: safe to
copy and share once published. Interface implementers must ensure concurrent access safety
for all methods and atomic operations for statistics counters.

This package serves as the contract definition for all ShadowFS components,
ensuring consistency, testability, and maintainability across the system.
*/
package types
