package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNoEmbedding marks a signal that reached fusion without a vector.
var ErrNoEmbedding = errors.New("signal has no embedding")

// SourceType classifies where a signal came from.
type SourceType string

const (
	SourceWebNews   SourceType = "WEB_NEWS"
	SourceMessaging SourceType = "MESSAGING"
	SourceOther     SourceType = "OTHER"
)

// ParseSourceType maps upstream labels onto the three source types.
// Unknown labels become SourceOther.
func ParseSourceType(s string) SourceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "web_news", "web", "news", "rss":
		return SourceWebNews
	case "messaging", "telegram", "tg", "channel":
		return SourceMessaging
	default:
		return SourceOther
	}
}

// UnmarshalJSON accepts any casing and the common aliases.
func (t *SourceType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("source_type: %w", err)
	}
	*t = ParseSourceType(s)
	return nil
}

// RawSignal is the wire form of one ingested report.
type RawSignal struct {
	ID          string     `json:"id,omitempty"`
	SourceType  SourceType `json:"source_type"`
	SourceName  string     `json:"source_name"`
	PublishedAt string     `json:"published_at"`
	Text        string     `json:"text"`
	Embedding   []float32  `json:"embedding,omitempty"`
}

// Signal is a RawSignal with its derived fields. Signals are immutable once
// built; the fusion engine only reads them.
type Signal struct {
	RawSignal
	Published Timestamp
	Keywords  TagSet
}

// ParseRawSignal decodes a JSON payload and fills in a content-derived ID
// when the upstream did not supply one.
func ParseRawSignal(data []byte) (RawSignal, error) {
	var rs RawSignal
	if err := json.Unmarshal(data, &rs); err != nil {
		return RawSignal{}, fmt.Errorf("parse raw signal: %w", err)
	}
	if rs.SourceType == "" {
		rs.SourceType = SourceOther
	}
	if strings.TrimSpace(rs.Text) == "" {
		return RawSignal{}, errors.New("parse raw signal: empty text")
	}
	if rs.ID == "" {
		rs.ID = SignalID(rs)
	}
	return rs, nil
}

// SignalID derives a stable identifier from the signal's content.
func SignalID(rs RawSignal) string {
	input := fmt.Sprintf("%s|%s|%s|%s", rs.SourceType, rs.SourceName, rs.PublishedAt, rs.Text)
	hash := sha256.Sum256([]byte(input))
	return "sig-" + hex.EncodeToString(hash[:12])
}

// NewSignal parses the timestamp and extracts keywords.
func NewSignal(rs RawSignal, kw *KeywordExtractor) Signal {
	return Signal{
		RawSignal: rs,
		Published: ParseTimestamp(rs.PublishedAt),
		Keywords:  kw.Extract(rs.Text),
	}
}

// HasEmbedding reports whether the signal carries a non-empty vector.
func (s Signal) HasEmbedding() bool {
	return len(s.Embedding) > 0
}

// ClusterMember is a committed signal together with its cluster assignment,
// as read back from the store to rebuild the active set.
type ClusterMember struct {
	Signal    RawSignal
	ClusterID string
}

// ArchivedSignal is a signal read back from the archive with the key it is
// ordered by.
type ArchivedSignal struct {
	RawSignal
	SortKey int64
}

// Cursor is the checkpoint position just after a.
func (a ArchivedSignal) Cursor(name string) Checkpoint {
	return Checkpoint{Name: name, SortKey: a.SortKey, SignalID: a.ID}
}

// Assignment records that a signal was fused into a cluster. Assignments are
// written once and never updated.
type Assignment struct {
	SignalID  string `json:"signal_id"`
	ClusterID string `json:"cluster_id"`
}

// UniqueEvent is the durable, externally visible result of fusion.
type UniqueEvent struct {
	ClusterID               string       `json:"cluster_id"`
	FirstSeenAt             time.Time    `json:"first_seen_at"`
	LastSeenAt              time.Time    `json:"last_seen_at"`
	MemberCount             int          `json:"member_count"`
	SourceNames             []string     `json:"source_names"`
	SourceTypes             []SourceType `json:"source_types,omitempty"`
	CrossSourceCorroborated bool         `json:"is_cross_source_corroborated"`
}

// Merge folds a newer snapshot of the same cluster into e. Member count is
// left to the caller, which knows the committed total.
func (e UniqueEvent) Merge(newer UniqueEvent) UniqueEvent {
	out := e
	if out.FirstSeenAt.IsZero() || (!newer.FirstSeenAt.IsZero() && newer.FirstSeenAt.Before(out.FirstSeenAt)) {
		out.FirstSeenAt = newer.FirstSeenAt
	}
	if newer.LastSeenAt.After(out.LastSeenAt) {
		out.LastSeenAt = newer.LastSeenAt
	}
	out.SourceNames = unionStrings(out.SourceNames, newer.SourceNames)
	types := make([]string, 0, len(out.SourceTypes)+len(newer.SourceTypes))
	for _, t := range append(append([]SourceType{}, out.SourceTypes...), newer.SourceTypes...) {
		types = append(types, string(t))
	}
	out.SourceTypes = nil
	for _, t := range unionStrings(nil, types) {
		out.SourceTypes = append(out.SourceTypes, SourceType(t))
	}
	out.CrossSourceCorroborated = out.CrossSourceCorroborated || newer.CrossSourceCorroborated
	if newer.MemberCount > out.MemberCount {
		out.MemberCount = newer.MemberCount
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
