// Package catalog gives rules and strategies content-addressed identity and
// a place to live.
//
// A definition's ref is "sha256:<hex>" over its canonical JSON form, domain
// separated so a rule and a strategy with coincidentally equal bytes can
// never collide. Canonical JSON follows RFC 8785: object keys sorted by
// UTF-16 code units, NFC-normalized strings, no HTML escaping, shortest
// number forms. Equal definitions therefore hash to equal refs on any
// machine.
//
// The Catalog resolves definitions by ref or by name. Names are an index
// over refs: registering two different definitions under one name is
// rejected, re-registering identical content is idempotent. Unknown names
// come back with a did-you-mean suggestion when a close name exists.
//
// Backing storage is pluggable through Store. MemStore keeps everything in
// process; the natsbus package provides a JetStream key-value backed store
// for shared deployments.
package catalog
