// Package retriever fetches remote artifacts, optionally recording them in or
// replaying them from a saved-artifact bucket.
//
// Three modes compose with the same call sites:
//
//   - default: fetch over HTTP into the requested local path
//   - save: fetch over HTTP and also copy the artifact into the saved bucket
//   - use saved: never touch the network; serve artifacts from the saved bucket
//
// Saved keys are derived from the remote location as {host}/{path}, so a
// saved bucket opened with fileblob mirrors the remote tree on disk and can
// serve as an rsync source directory.
package retriever
