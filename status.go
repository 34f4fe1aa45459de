package photovec

import (
	"context"

	"github.com/lensmark/photovec/ann"
)

// Status aggregates corpus and backend diagnostics for one index directory.
type Status struct {
	// Photos is the number of indexed rows.
	Photos int `json:"photos"`
	// Dim is the embedding dimension, zero when no vectors are stored.
	Dim int `json:"dim"`
	// Backends reports every kind in preference order. Kinds without a
	// resolved adapter appear with Available false.
	Backends []ann.Status `json:"backends"`
}

// Status probes every backend's sidecar and annotates it against the current
// corpus.
//
// Backends are never invalidated automatically: an upsert that changes the
// corpus leaves sidecars in place and they keep answering. Stale flags a
// built sidecar whose recorded row count or dimension no longer matches the
// corpus, so callers decide when to rebuild.
func (m *Manager) Status(ctx context.Context) Status {
	st := m.store.State()
	out := Status{
		Photos: st.Len(),
		Dim:    st.Dim,
	}
	for _, kind := range ann.Preference {
		backend, ok := m.backends[kind]
		if !ok {
			out.Backends = append(out.Backends, ann.Status{Kind: kind})
			continue
		}
		bs := backend.Status(ctx)
		if bs.Built && (bs.Size != st.Len() || bs.Dim != st.Dim) {
			bs.Stale = true
		}
		out.Backends = append(out.Backends, bs)
	}
	return out
}
