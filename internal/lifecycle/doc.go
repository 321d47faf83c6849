/*
Package lifecycle implements the intake → backup → archive pipeline.

A Coordinator takes a point-in-time listing of the intake container and hands each
object to one of a fixed number of workers. Each worker runs a Processor, which:

 1. copies the intake object to the backup container under the same key,
 2. reads the backup copy's metadata,
 3. keeps the object in backup when it is still inside the retention window,
 4. otherwise gzips the backup content into the archive container as <key>.gz,
 5. and deletes the backup copy, treating an already-missing copy as deleted.

Every listed object produces exactly one Outcome. Failures are recorded with the
stage they happened at and never stop the rest of the batch. Store retries are not
done here; wrap the store with internal/storage/resilient for that.

Re-running after a crash is safe: copy and put overwrite, and delete tolerates a
missing object, so every object converges to Replicated or Archived.
*/
package lifecycle
