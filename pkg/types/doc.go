/*
Package types provides the core interfaces and data structures shared by every tiercycle component.

# Architecture Overview

tiercycle moves objects through three containers of one object store:

	┌──────────┐  copy   ┌──────────┐  gzip + put  ┌───────────┐
	│  intake  │ ──────▶ │  backup  │ ───────────▶ │  archive  │
	└──────────┘         └──────────┘   (aged out) └───────────┘
	                          │
	                          └── delete once the archive copy exists

The lifecycle packages only ever see the Store interface defined here. Concrete adapters
(S3, Azure Blob, GCS, in-memory) live under internal/storage and translate their SDK
errors into pkg/errors codes.

# Core Interfaces

Store:
Object operations addressed by ObjectRef (container + key). List returns a lazy
iter.Seq2 so large containers are never materialized by the adapter; callers that need
a point-in-time snapshot collect it themselves.

Pinger:
Optional capability used by `tiercycle validate` to check that a container is reachable
before a run.

# Interface Contracts

 1. Operations accept context.Context for cancellation and deadlines.
 2. Stat, Copy, Get and Delete return an OBJECT_NOT_FOUND error when the object is absent.
 3. Put and Copy overwrite the destination, so repeating them is safe.
 4. Transient faults carry the TRANSIENT code and are retryable; everything else is not.
 5. Implementations must be safe for concurrent use.

# Timestamps

ObjectMetadata.CreatedAt is the creation time of the object's content. Adapters carry the
source creation time onto copies (see CreatedAtMetadataKey) so a backup replica reports the
age of the data it holds rather than the time it was replicated.
*/
package types
