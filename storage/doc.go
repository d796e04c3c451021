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


// Package storage provides the storage abstraction layer for recordstream.
//
// This package defines repository interfaces that decouple the pipeline from
// the concrete document and chunk stores. The ingestion pipeline only depends
// on RecordRepository (status reads and upserts) and ChunkRepository
// (embedded chunk writes and deletes).
//
// # Architecture
//
//   - Repository: transaction support and lifecycle shared by all repositories
//   - RecordRepository: get-by-id and batch upsert of records
//   - ChunkRepository: embedded chunks, scoped by record and virtual record
//
// # Usage
//
// Open a BadgerDB-backed pair of repositories:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	records := badger.NewRecordRepository(backend)
//	chunks := badger.NewChunkRepository(backend)
//
// Use in tests with in-memory storage:
//
//	records, chunks, backend, err := badger.NewMemoryRepositories()
//
// # Concurrency
//
// Indexing tasks for different records run in parallel and share one
// repository pair, so implementations must tolerate concurrent callers.
package storage
