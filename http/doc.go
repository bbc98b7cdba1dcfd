// Package http exposes burndrop shares over HTTP.
//
// # Routes
//
//	POST /api/shares                 multipart upload: file, ttl, password, max_downloads
//	GET  /api/shares/{id}            share metadata, does not consume a download
//	GET  /api/shares/{id}/download   streams the file and consumes one download
//	POST /api/shares/{id}/download   same, password may come as a form field
//	GET  /api/stats                  aggregate statistics
//	GET  /api/stats/live             websocket pushing statistics periodically
//	GET  /healthz                    readiness check
//	GET  /metrics                    Prometheus metrics
//
// The share password is sent in the X-Share-Password header. Errors are JSON
// objects of the form {"error": code, "message": text}:
//
//	not_found          404  missing, expired or exhausted share
//	password_required  401  the share is protected and no password was sent
//	password_invalid   401  the password does not match
//	too_many_attempts  429  wrong-password budget exhausted for (share, client)
//	invalid_request    400  bad upload parameters
//	too_large          413  upload exceeds the configured size
//	unavailable        503  the metadata store is unreachable
//
// With HandlerConfig.ConcealAuthErrors set, both password errors are
// reported as not_found so a caller cannot tell a protected share from a
// missing one.
//
// # Usage
//
//	handler := http.NewHandler(&http.HandlerConfig{
//	    MaxUploadSize: 100 << 20,
//	    Limiter:       http.NewAttemptLimiter(5, 10000, 15*time.Minute),
//	}, service)
//	srv := &nethttp.Server{Addr: ":8080", Handler: handler.Router()}
package http
