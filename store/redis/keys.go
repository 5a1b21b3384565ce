package redis

import (
	"fmt"
	"strconv"
	"strings"
)

// Redis key naming conventions for postmaster data.
// All keys are prefixed with "postmaster:" to avoid collisions.

const keyPrefix = "postmaster:"

// ── Overflow keys ──

// overflowKey is the Sorted Set ordering stored messages. The score is the
// priority and the member is overflowMember(seq, id), so members with equal
// scores sort lexicographically by zero-padded sequence number.
const overflowKey = keyPrefix + "overflow"

// messageKey returns the Hash key for a stored message: postmaster:msg:{id}
func messageKey(id string) string { return keyPrefix + "msg:" + id }

// overflowMember returns the Sorted Set member for a message.
func overflowMember(seq uint64, id string) string {
	return fmt.Sprintf("%020d:%s", seq, id)
}

// parseOverflowMember splits a member into its sequence number and ID.
func parseOverflowMember(member string) (uint64, string, error) {
	seqStr, msgID, ok := strings.Cut(member, ":")
	if !ok {
		return 0, "", fmt.Errorf("postmaster/redis: malformed overflow member %q", member)
	}
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("postmaster/redis: malformed overflow member %q: %w", member, err)
	}
	return seq, msgID, nil
}

// ── DLQ keys ──

// dlqKey returns the Hash key for a DLQ entry: postmaster:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIndexKey is the Sorted Set of DLQ entry IDs scored by FailedAt.
const dlqIndexKey = keyPrefix + "dlq_idx"
