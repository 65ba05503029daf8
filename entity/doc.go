// Package entity holds the shared kernel of the SDK's entity model:
// identifiers, metadata, store keys, the base64 source codec, map codecs
// for backend documents, and the kind registry with per-kind spec schemas.
//
// Entity packages (run, function, task, artifact, dataitem, project) build
// on this kernel; it has no knowledge of any concrete entity.
package entity
