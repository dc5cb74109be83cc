// Package s3 stores deployment state objects in an S3 bucket.
//
// The bucket is versioned on creation so earlier state revisions can be
// recovered. A custom endpoint (path-style addressing) is supported for
// S3-compatible stores used in development.
package s3
