/*
Package s3 implements the tiercycle object store on AWS S3 and S3-compatible services.

One Backend serves every tier: container names are bucket names, so intake, backup and
archive may live in different buckets under the same credentials.

# Copies

Copy is a server-side CopyObject with MetadataDirective REPLACE. The source creation time
is written to the x-amz-meta-tiercycle-created-at header and Stat prefers it over
LastModified, so a backup copy reports the age of the original upload:

	┌──────────┐  CopyObject + created-at  ┌──────────┐
	│  intake  │ ────────────────────────▶ │  backup  │
	└──────────┘                           └──────────┘

# CargoShip Uploads

With cargoship.enabled, Put sends objects at or above cargoship.threshold through
CargoShip's Transporter (chunked, concurrent multipart upload). A failed CargoShip upload
falls back to a single PutObject.

	s3:
	  region: us-east-1
	  cargoship:
	    enabled: true
	    threshold: 33554432   # 32MB
	    chunk_size: 16777216  # 16MB
	    concurrency: 8

# Errors

SDK failures are translated into pkg/errors codes: NoSuchKey and HEAD 404 become
OBJECT_NOT_FOUND, SlowDown and 429 become THROTTLED, 5xx and connection failures become
TRANSIENT. Everything else is PERMANENT. Retrying is left to internal/storage/resilient.

# Credentials

Static keys from the config file or TIERCYCLE_* environment take precedence. Without them
the default AWS credential chain applies (environment, shared config, IMDS).
*/
package s3
