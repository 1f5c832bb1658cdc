/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package signing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	HeaderSignature   = "X-Sync-Signature"
	HeaderTimestamp   = "X-Ts"
	HeaderAdminSecret = "X-Admin-Secret"
)

// Sign returns hex(sha256(body + "|" + secret)), the digest carried in X-Sync-Signature
func Sign(body []byte, secret string) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte("|"))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// SignTimestamp signs a list request, whose only signed content is its timestamp
func SignTimestamp(ts int64, secret string) string {
	return Sign([]byte(strconv.FormatInt(ts, 10)), secret)
}

// Equal compares two signatures in constant time
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// WithinSkew reports whether the epoch-millisecond ts is at most maxSkew away from now
func WithinSkew(ts int64, now time.Time, maxSkew time.Duration) bool {
	diff := now.UnixMilli() - ts
	if diff < 0 {
		diff = -diff
	}
	return diff <= maxSkew.Milliseconds()
}
