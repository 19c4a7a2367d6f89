// Package conversation derives stable conversation identities from unordered
// pairs of user ids, and names the broadcast rooms built on them.
package conversation

import (
	"fmt"
	"math"
)

// Derive combines two participant ids into a single conversation id.
// The pair is sorted first, so Derive(a, b) == Derive(b, a).
//
// The combination is the Szudzik pairing function restricted to lo < hi
// (hi*hi + lo), which is collision-free over non-negative ids and exactly
// invertible with Extract. The two ids are also stored explicitly alongside
// every message, so the derived value is only ever a wire-level handle.
func Derive(a, b int64) int64 {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return hi*hi + lo
}

// Extract recovers the sorted participant pair from a derived conversation id.
// ok is false if id was not produced by Derive over two distinct ids.
func Extract(id int64) (lo, hi int64, ok bool) {
	if id < 0 {
		return 0, 0, false
	}
	hi = int64(math.Sqrt(float64(id)))
	// float truncation can land one off on either side
	for hi > 0 && hi*hi > id {
		hi--
	}
	for (hi+1)*(hi+1) <= id {
		hi++
	}
	lo = id - hi*hi
	// user ids are positive and the pair is strictly ordered
	if lo < 1 || lo >= hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// Room names the broadcast room for a conversation.
func Room(conversationID int64) string {
	return fmt.Sprintf("conv:%d", conversationID)
}

// UserRoom names a user's personal notification room.
func UserRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}
