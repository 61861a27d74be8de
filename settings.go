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
	"io"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Settings configures the stores. Zero values are filled in by
// DefaultSettings / LoadSettings.
type Settings struct {
	// ChunkingEnabled splits streams into per-chunk objects/partitions.
	ChunkingEnabled bool `yaml:"chunkingEnabled" default:"false"`

	// ChunkSize is the number of events per stream chunk when chunking.
	ChunkSize int `yaml:"chunkSize" default:"1000"`

	// PayloadChunkThresholdBytes is the UTF-8 payload size above which table
	// rows switch to the binary chunked representation.
	PayloadChunkThresholdBytes int `yaml:"payloadChunkThresholdBytes" default:"61440"`

	// MaxPayloadChunkSizeBytes caps a single binary chunk stored in a row.
	MaxPayloadChunkSizeBytes int `yaml:"maxPayloadChunkSizeBytes" default:"61440"`

	// CompressPayloads gzips large payloads before chunking.
	CompressPayloads bool `yaml:"compressPayloads" default:"true"`

	// AutoCreateContainers lets store factories ensure containers/tables at
	// construction time. Hot paths never auto-create.
	AutoCreateContainers bool `yaml:"autoCreateContainers" default:"false"`

	// DefaultStore names the substrate used when a document carries no
	// routing information at all.
	DefaultStore string `yaml:"defaultStore" default:"default"`
}

// DefaultSettings returns Settings with every default applied.
func DefaultSettings() Settings {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		panic(err)
	}
	return s
}

// LoadSettings reads yaml from |r| and fills unset fields with defaults.
func LoadSettings(r io.Reader) (Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Settings{}, err
	}
	if err := defaults.Set(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
