// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"errors"
	"fmt"
	"strings"
)

// AckMode selects when AckMessage commits a message's offset.
type AckMode string

const (
	// AckOnRelease commits once every subscriber holding the message has
	// released it (its reference count reaches zero). Kafka commits are
	// cumulative, so a partition is only committed up to the offset before
	// the lowest message still held; releasing a later message first
	// commits nothing until the earlier ones are released. Default.
	AckOnRelease AckMode = "release"

	// AckFirst commits on the first AckMessage call for a message, whatever
	// its reference count. Later calls for the same message do nothing.
	// Other subscribers may still be processing a committed message, and
	// committing an offset also commits every earlier offset of the
	// partition, whether or not those messages were acknowledged.
	AckFirst AckMode = "first"
)

var ackModeTypes map[AckMode]struct{}
var ackModeList []string

func init() {
	list := []AckMode{
		AckOnRelease,
		AckFirst,
	}

	ackModeTypes = make(map[AckMode]struct{})
	for _, a := range list {
		ackModeTypes[a] = struct{}{}
		ackModeList = append(ackModeList, string(a))
	}
}

// validateAckMode validates the AckMode enum value.
func validateAckMode(mode AckMode) error {
	if mode == "" {
		return nil
	}

	_, ok := ackModeTypes[mode]
	if ok {
		return nil
	}

	list := strings.Join(ackModeList, "', '")
	list = "'" + list + "'"
	return errors.Join(ErrValidation,
		fmt.Errorf("ack mode '%s' is invalid: must be %s or empty", mode, list))
}
