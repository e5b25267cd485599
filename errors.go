// Copyright 2024 The Cockroach Authors
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

package ordmap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is the error wrapped by the panic raised when a
	// negative capacity is requested.
	ErrInvalidArgument = errors.New("ordmap: invalid argument")

	// ErrConcurrentModification is returned by an iterator (or an entry
	// handle obtained from one) after the map was structurally modified by
	// anything other than that iterator.
	ErrConcurrentModification = errors.New("ordmap: concurrent modification")

	// ErrUnsupported is returned by view mutations that cannot be expressed
	// in terms of the underlying map, such as adding to the key set or the
	// value collection.
	ErrUnsupported = fmt.Errorf("ordmap: %w", errors.ErrUnsupported)

	// ErrNoCurrentEntry is returned by Iterator.Remove when Next has not
	// been called, or the current entry was already removed.
	ErrNoCurrentEntry = errors.New("ordmap: no current entry")
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
