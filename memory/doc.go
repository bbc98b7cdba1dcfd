// Package memory provides in-process implementations of burndrop.ShareRepo
// and burndrop.BlobStorage. They back tests and single-process deployments
// that can afford to lose every share on restart.
package memory
