// Copyright 2026 Dolthub, Inc.
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

package eventstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashDocument computes the SHA-256 digest, hex encoded, of the canonical
// serialization of |doc|. The hash chain fields themselves are excluded so
// the digest depends only on document content; struct-driven field order and
// compact output keep the serialization canonical (maps marshal with sorted
// keys).
func HashDocument(doc *ObjectDocument) (string, error) {
	shadow := *doc
	shadow.Hash = ""
	shadow.PrevHash = ""

	data, err := json.Marshal(&shadow)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
