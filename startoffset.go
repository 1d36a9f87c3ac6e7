// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// StartOffset is where the consumer group begins reading a partition that
// has no committed offset.
type StartOffset string

const (
	// StartOffsetEarliest reads from the oldest retained record.
	StartOffsetEarliest StartOffset = "earliest"

	// StartOffsetLatest reads only records produced after the group joins.
	StartOffsetLatest StartOffset = "latest"
)

var startOffsetTypes map[StartOffset]struct{}
var startOffsetList []string

func init() {
	list := []StartOffset{
		StartOffsetEarliest,
		StartOffsetLatest,
	}

	startOffsetTypes = make(map[StartOffset]struct{})
	for _, s := range list {
		startOffsetTypes[s] = struct{}{}
		startOffsetList = append(startOffsetList, string(s))
	}
}

// validateStartOffset validates the StartOffset enum value.
func validateStartOffset(s StartOffset) error {
	if s == "" {
		return nil
	}

	_, ok := startOffsetTypes[s]
	if ok {
		return nil
	}

	list := strings.Join(startOffsetList, "', '")
	list = "'" + list + "'"
	return errors.Join(ErrValidation,
		fmt.Errorf("start offset '%s' is invalid: must be %s or empty", s, list))
}

// kgoOffset converts the setting to a franz-go reset offset.
// Empty defaults to earliest.
func (s StartOffset) kgoOffset() kgo.Offset {
	if s == StartOffsetLatest {
		return kgo.NewOffset().AtEnd()
	}
	return kgo.NewOffset().AtStart()
}
