// Copyright 2025 Poiesic Systems
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


// Package search runs semantic queries over indexed record chunks.
//
// A query is embedded with the same embedder used at indexing time and
// compared against stored chunk vectors. Chunks that contain every
// significant query word receive a fixed boost so exact phrasing ranks
// above loose paraphrase.
package search
