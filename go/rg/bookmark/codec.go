/*
Copyright 2025 The ReplGate Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bookmark

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/replgate/replgate/go/rg/rgerrors"
)

// ErrMalformedBookmark is returned by Decode for any token that is not
// a valid bookmark. A malformed bookmark is always a hard failure:
// treating it as "unconstrained" would silently weaken the caller's
// consistency guarantee.
var ErrMalformedBookmark = rgerrors.New(rgerrors.InvalidArgument, "malformed bookmark")

// Wire format, after the "rg:" prefix, URL-safe unpadded base64 of:
//
//	version  1 byte   (currently 1)
//	kind     1 byte
//	watermark 8 bytes big-endian
//	origin   uvarint length + bytes
//	checksum 4 bytes: truncated big-endian xxhash64 of everything above
//
// The version byte is covered by the checksum so future formats can
// re-arrange everything after it.
const (
	tokenPrefix   = "rg:"
	codecVersion  = 1
	checksumBytes = 4
)

var tokenEncoding = base64.RawURLEncoding

// Encode serializes a bookmark into its opaque transport form. It is
// deterministic and never fails for well-formed input; a nil bookmark
// encodes as the empty string (no bookmark).
func Encode(b *Bookmark) string {
	if b == nil {
		return ""
	}

	payload := make([]byte, 0, 2+8+binary.MaxVarintLen64+len(b.OriginInstanceID)+checksumBytes)
	payload = append(payload, codecVersion, byte(b.Kind))
	payload = binary.BigEndian.AppendUint64(payload, uint64(b.RequiredWatermark))
	payload = binary.AppendUvarint(payload, uint64(len(b.OriginInstanceID)))
	payload = append(payload, b.OriginInstanceID...)

	sum := xxhash.Sum64(payload)
	payload = binary.BigEndian.AppendUint32(payload, uint32(sum))

	return tokenPrefix + tokenEncoding.EncodeToString(payload)
}

// Decode parses an opaque bookmark token. The empty string decodes to
// (nil, nil): an absent bookmark starts a fresh session and is not the
// malformed case. Every other failure mode returns an error wrapping
// ErrMalformedBookmark.
func Decode(token string) (*Bookmark, error) {
	if token == "" {
		return nil, nil
	}
	if len(token) < len(tokenPrefix) || token[:len(tokenPrefix)] != tokenPrefix {
		return nil, rgerrors.Wrap(ErrMalformedBookmark, "missing token prefix")
	}

	payload, err := tokenEncoding.DecodeString(token[len(tokenPrefix):])
	if err != nil {
		return nil, rgerrors.Wrap(ErrMalformedBookmark, "invalid base64 payload")
	}
	// version + kind + watermark + at least one origin-length byte + checksum
	if len(payload) < 2+8+1+checksumBytes {
		return nil, rgerrors.Wrap(ErrMalformedBookmark, "payload too short")
	}

	body, sumBytes := payload[:len(payload)-checksumBytes], payload[len(payload)-checksumBytes:]
	if binary.BigEndian.Uint32(sumBytes) != uint32(xxhash.Sum64(body)) {
		return nil, rgerrors.Wrap(ErrMalformedBookmark, "checksum mismatch")
	}

	if body[0] != codecVersion {
		return nil, rgerrors.Wrapf(ErrMalformedBookmark, "unsupported version %d", body[0])
	}
	kind := Kind(body[1])
	if kind > KindContinuation {
		return nil, rgerrors.Wrapf(ErrMalformedBookmark, "unknown kind %d", body[1])
	}

	wm := Watermark(binary.BigEndian.Uint64(body[2:10]))

	rest := body[10:]
	originLen, n := binary.Uvarint(rest)
	if n <= 0 || uint64(len(rest)-n) != originLen {
		return nil, rgerrors.Wrap(ErrMalformedBookmark, "truncated origin")
	}

	return &Bookmark{
		Kind:              kind,
		RequiredWatermark: wm,
		OriginInstanceID:  string(rest[n:]),
	}, nil
}
