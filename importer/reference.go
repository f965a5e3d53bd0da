/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedReference is wrapped by errors returned for reference strings
// that violate the grammar below. Unlike an unsupported operation type, a
// malformed reference aborts the whole import.
var ErrMalformedReference = errors.New("malformed node reference")

// Reference is a parsed external node reference. The raw grammar is
// `[^]base[:k]`: an optional leading "^" marks a control-only dependency
// (resolved but contributing no data), and an optional ":k" suffix selects
// the k-th output of a multi-output producer. No suffix means output 0.
type Reference struct {
	// Base is the referenced node's external (un-sanitized) name.
	Base string

	// OutputIndex selects one output of a multi-output producer, 0 when
	// the reference carries no suffix.
	OutputIndex int

	// Control is true for control-only dependencies ("^" prefix).
	Control bool
}

// ParseReference parses a raw external reference string. It is pure string
// parsing: table lookups belong to the Importer.
func ParseReference(raw string) (Reference, error) {
	ref := Reference{}
	rest := raw
	if strings.HasPrefix(rest, "^") {
		ref.Control = true
		rest = rest[1:]
	}

	parts := strings.Split(rest, ":")
	if len(parts) > 2 {
		return Reference{}, errors.Wrapf(ErrMalformedReference, "%q: more than one output-index suffix", raw)
	}
	if len(parts) == 2 {
		index, err := strconv.Atoi(parts[1])
		if err != nil || index < 0 {
			return Reference{}, errors.Wrapf(ErrMalformedReference, "%q: output-index suffix %q is not a non-negative integer", raw, parts[1])
		}
		ref.OutputIndex = index
	}
	ref.Base = parts[0]
	if ref.Base == "" {
		return Reference{}, errors.Wrapf(ErrMalformedReference, "%q: empty base name", raw)
	}
	return ref, nil
}

// String reassembles the reference into its raw external form.
func (r Reference) String() string {
	s := r.Base
	if r.OutputIndex != 0 {
		s = fmt.Sprintf("%s:%d", s, r.OutputIndex)
	}
	if r.Control {
		s = "^" + s
	}
	return s
}
