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

package storage

import "errors"

var (
	// ErrNotFound is returned when no record or chunk exists for a key.
	ErrNotFound = errors.New("not found in record store")

	// ErrStorageClosed is returned by repositories whose backend has been closed.
	ErrStorageClosed = errors.New("record store is closed")

	// ErrInvalidQuery is returned for non-positive limits and batch sizes.
	ErrInvalidQuery = errors.New("invalid record store query")

	// ErrSerializationFailed wraps msgpack encode and decode errors.
	ErrSerializationFailed = errors.New("record store encoding failed")
)
