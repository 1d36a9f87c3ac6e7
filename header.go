// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xmidt-org/wrp-go/v5"
)

// Header returns every value of the record header named key.
// Header names are matched case-insensitively; a header that appears several
// times yields several values, in record order.
//
// Returns nil if the message carries no such header.
func (m *Message) Header(key string) []string {
	var rv []string
	for _, h := range m.Headers {
		if strings.EqualFold(h.Key, key) {
			rv = append(rv, string(h.Value))
		}
	}
	return rv
}

// HeaderValue returns the first value of the record header named key.
func (m *Message) HeaderValue(key string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value), true
		}
	}
	return "", false
}

// WRP decodes the message value as a msgpack encoded WRP message, the format
// WRP publishers write to Kafka.
func (m *Message) WRP() (*wrp.Message, error) {
	if len(m.Value) == 0 {
		return nil, errors.Join(ErrValidation, fmt.Errorf("message %s@%d has no payload", m.TopicPartition(), m.Offset))
	}

	var msg wrp.Message
	if err := wrp.NewDecoderBytes(m.Value, wrp.Msgpack).Decode(&msg); err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("decoding WRP payload of %s@%d", m.TopicPartition(), m.Offset), err)
	}
	return &msg, nil
}

// DeviceID parses the record key as a WRP device ID. WRP publishers key
// records by the source device so that a device's events share a partition.
func (m *Message) DeviceID() (wrp.DeviceID, error) {
	var zero wrp.DeviceID
	if len(m.Key) == 0 {
		return zero, errors.Join(ErrValidation, fmt.Errorf("message %s@%d has no key", m.TopicPartition(), m.Offset))
	}
	id, err := wrp.ParseDeviceID(string(m.Key))
	if err != nil {
		return zero, errors.Join(ErrValidation, err)
	}
	return id, nil
}
