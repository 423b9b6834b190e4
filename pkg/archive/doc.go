// Package archive stores audit export artifacts durably before
// retention cleanup deletes the source rows. Backends: S3 (MinIO
// compatible) and a local directory.
package archive
