// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retriever

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultRRFK is the reciprocal rank fusion constant.
const DefaultRRFK = 60

// Fingerprint identifies the same content across strategies.
type Fingerprint func(Item) string

// DefaultFingerprint uses the trimmed, lower-cased item id. Items without an
// id are fingerprinted by an xxhash of their payload's canonical JSON
// (encoding/json sorts map keys).
func DefaultFingerprint(it Item) string {
	if id := strings.ToLower(strings.TrimSpace(it.ID)); id != "" {
		return "id:" + id
	}
	data, err := json.Marshal(it.Payload)
	if err != nil {
		data = []byte(fmt.Sprint(it.Payload))
	}
	return "sum:" + strconv.FormatUint(xxhash.Sum64(data), 16)
}

// RankedList is one strategy's results in rank order.
type RankedList struct {
	Source string
	Items  []Item
}

type fusedEntry struct {
	fingerprint string
	item        Item
	score       float64
	bestRank    int
	bestSource  int
	sources     []string
}

// fuse combines ranked lists with reciprocal rank fusion. An item at rank r
// (1-indexed) contributes 1/(k+r); contributions are summed per fingerprint.
// Each list counts a fingerprint once, at its best rank.
//
// When several lists return the same fingerprint, the returned id and payload
// come from the occurrence with the best individual rank; equal ranks go to
// the earlier list. Results are ordered by fused score, then best individual
// rank, then list order, then fingerprint, and truncated to topK.
func fuse(lists []RankedList, k int, topK int, fp Fingerprint) []fusedEntry {
	if k <= 0 {
		k = DefaultRRFK
	}
	if fp == nil {
		fp = DefaultFingerprint
	}

	entries := make(map[string]*fusedEntry)
	for li, list := range lists {
		seen := make(map[string]struct{}, len(list.Items))
		for i, it := range list.Items {
			key := fp(it)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			r := i + 1
			e, ok := entries[key]
			if !ok {
				e = &fusedEntry{fingerprint: key, item: it, bestRank: r, bestSource: li}
				entries[key] = e
			} else if r < e.bestRank {
				e.item, e.bestRank, e.bestSource = it, r, li
			}
			e.score += 1.0 / float64(k+r)
			e.sources = append(e.sources, list.Source)
		}
	}

	out := make([]fusedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.bestRank != b.bestRank {
			return a.bestRank < b.bestRank
		}
		if a.bestSource != b.bestSource {
			return a.bestSource < b.bestSource
		}
		return a.fingerprint < b.fingerprint
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Fuse applies reciprocal rank fusion to lists and returns items carrying
// the fused score and their contributing sources, attributed to retriever.
func Fuse(retriever string, lists []RankedList, k, topK int, fp Fingerprint) []Item {
	fused := fuse(lists, k, topK, fp)
	items := make([]Item, 0, len(fused))
	for _, e := range fused {
		it := e.item
		it.Score = e.score
		it.Provenance = Provenance{
			Retriever: retriever,
			Backend:   string(KindHybrid),
			Sources:   e.sources,
		}
		items = append(items, it)
	}
	return items
}
