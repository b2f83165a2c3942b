package cache

import (
	"slices"
	"sort"
	"strings"
)

// NormalizeSender maps any casing of "user" to SenderUser and everything else to SenderAI.
func NormalizeSender(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), SenderUser) {
		return SenderUser
	}
	return SenderAI
}

// sameMessage decides identity by server id, then client id, then content.
func sameMessage(a, b Message) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	if a.ClientID != "" && b.ClientID != "" {
		return a.ClientID == b.ClientID
	}
	return NormalizeSender(a.Sender) == NormalizeSender(b.Sender) &&
		a.Text == b.Text &&
		a.Timestamp.Equal(b.Timestamp)
}

// MergeMessages returns the union of cached and incoming with incoming
// entries winning on identity, ordered by timestamp.
func MergeMessages(cached, incoming []Message) []Message {
	out := make([]Message, 0, len(cached)+len(incoming))
	for _, m := range cached {
		out = upsertMessage(out, m)
	}
	for _, m := range incoming {
		out = upsertMessage(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func upsertMessage(list []Message, m Message) []Message {
	m.Sender = NormalizeSender(m.Sender)
	for i := range list {
		if sameMessage(list[i], m) {
			list[i] = m
			return list
		}
	}
	return append(list, m)
}

// MergeConversations merges by id. A cached entry survives only when it is
// strictly newer than the incoming one. Most recently updated first.
func MergeConversations(cached, incoming []Conversation) []Conversation {
	out := slices.Clone(cached)
	for _, c := range incoming {
		i := slices.IndexFunc(out, func(o Conversation) bool { return o.ID == c.ID })
		switch {
		case i < 0:
			out = append(out, c)
		case !out[i].UpdatedAt.After(c.UpdatedAt):
			out[i] = c
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if out == nil {
		out = []Conversation{}
	}
	return out
}
