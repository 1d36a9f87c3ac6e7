// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Pattern is the subscription handed to the consumer: an alternation of
// topic names.
//
//	""                 - subscribes to nothing
//	"orders"           - matches "orders" only
//	"orders|payments"  - matches "orders" or "payments"
//
// Topic names are literal; there are no wildcards. Names are sorted so equal
// topic sets always produce equal patterns.
type Pattern string

// maxTopicLength is the longest topic name Kafka accepts.
const maxTopicLength = 249

// newPattern builds the alternation of the distinct names in topics.
func newPattern(topics []string) Pattern {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	names := make([]string, 0, len(set))
	for t := range set {
		names = append(names, t)
	}
	sort.Strings(names)

	return Pattern(strings.Join(names, "|"))
}

// IsEmpty reports whether the pattern subscribes to nothing.
func (p Pattern) IsEmpty() bool {
	return p == ""
}

// Topics returns the topic names in the alternation.
func (p Pattern) Topics() []string {
	if p.IsEmpty() {
		return nil
	}
	return strings.Split(string(p), "|")
}

// Matches reports whether topic is one of the alternatives.
func (p Pattern) Matches(topic string) bool {
	if p.IsEmpty() || topic == "" {
		return false
	}
	for _, t := range p.Topics() {
		if t == topic {
			return true
		}
	}
	return false
}

// String returns the pattern text.
func (p Pattern) String() string {
	return string(p)
}

// compile builds a set-based matcher for repeated lookups.
func (p Pattern) compile() (*patternMatcher, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	topics := p.Topics()
	pm := patternMatcher{
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		pm.topics[t] = struct{}{}
	}
	return &pm, nil
}

// patternMatcher is a compiled Pattern.
type patternMatcher struct {
	topics map[string]struct{}
}

func (pm *patternMatcher) matches(topic string) bool {
	_, ok := pm.topics[topic]
	return ok
}

// diff returns the topics only in pm (removed) and only in next (added).
func (pm *patternMatcher) diff(next *patternMatcher) (removed, added []string) {
	for t := range pm.topics {
		if !next.matches(t) {
			removed = append(removed, t)
		}
	}
	for t := range next.topics {
		if !pm.matches(t) {
			added = append(added, t)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)
	return removed, added
}

// validate checks every alternative is a legal topic name.
func (p Pattern) validate() error {
	for i, t := range p.Topics() {
		if err := validateTopic(t); err != nil {
			return fmt.Errorf("pattern alternative %d: %w", i, err)
		}
	}
	return nil
}

// validateTopic checks a topic name against Kafka's naming rules:
// 1 to 249 characters of [a-zA-Z0-9._-], and not "." or "..".
func validateTopic(topic string) error {
	if topic == "" {
		return errors.Join(ErrValidation, fmt.Errorf("topic must not be empty"))
	}
	if len(topic) > maxTopicLength {
		return errors.Join(ErrValidation, fmt.Errorf("topic '%s' is longer than %d characters", topic, maxTopicLength))
	}
	if topic == "." || topic == ".." {
		return errors.Join(ErrValidation, fmt.Errorf("topic '%s' is invalid", topic))
	}
	for i := 0; i < len(topic); i++ {
		c := topic[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return errors.Join(ErrValidation, fmt.Errorf("topic '%s' contains invalid character %q", topic, c))
		}
	}
	return nil
}
