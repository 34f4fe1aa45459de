// Package photovec indexes photo libraries by semantic embedding and serves
// nearest-neighbor queries over them.
//
// The Manager owns one index directory: the persisted corpus of
// (path, mtime, embedding) rows plus optional per-backend sidecar indexes.
// Queries run either exactly over the corpus or through an approximate
// backend whose candidates are always reranked with exact cosine similarity,
// so ranking semantics never depend on which backend answered.
//
//	m, err := photovec.Open("/photos/.index")
//	if err != nil {
//		log.Fatal(err)
//	}
//	_, _, err = m.Upsert(ctx, provider, photos, 0)
//	results, meta, err := m.Search(ctx, provider, "dog on a beach", 10,
//		photovec.WithFast(ann.KindAuto))
//
// Backend kinds self-register through their packages; import the ones you
// want built:
//
//	import (
//		_ "github.com/lensmark/photovec/ann/annoy"
//		_ "github.com/lensmark/photovec/ann/flat"
//		_ "github.com/lensmark/photovec/ann/hnsw"
//	)
package photovec
