// Package burndrop implements self-destructing file shares: an upload
// yields an unguessable capability id that grants time-limited, optionally
// password-gated and download-count-limited access to the file.
//
// # Key Components
//
//   - Service: uploads files and resolves share ids into downloads
//   - Guard: pure access evaluation of a ShareRecord at a given time
//   - PasswordGuard: bcrypt hashing and verification of share passwords
//   - Sweeper: background reclamation of expired and exhausted shares
//   - ShareRepo: metadata persistence (SQLite, PostgreSQL, bbolt, memory)
//   - BlobStorage: byte storage (filesystem, S3, memory)
//
// # Admission
//
// Guard.Evaluate only advises. A download is granted by ShareRepo.Admit,
// which increments the download counter in a single conditional write and
// refuses once the share is expired or at its limit. Concurrent resolvers
// near the limit therefore never over-grant, even across processes.
//
// # Example Usage
//
//	svc, err := burndrop.NewService(repo, storage, burndrop.ServiceConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := svc.Upload(ctx, burndrop.UploadRequest{Name: "report.pdf", TTL: time.Hour}, file)
//
//	dl, err := svc.Resolve(ctx, res.ID, "")
//	if reason, ok := burndrop.DeniedReason(err); ok {
//	    // not_found, password_required or password_invalid
//	}
//	defer dl.Content.Close()
//
// See the http package for the REST API and the database packages for the
// metadata backends.
package burndrop
