// Package common holds process-wide identity and logging setup shared by
// all binaries in this repository.
package common

// Version is set at build time via -ldflags.
var Version = "dev"

// PackageName identifies this service in logs and metrics.
const PackageName = "s3proxy"
