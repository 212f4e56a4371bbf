// Package vocab splits model answers into display content and the trailing
// vocabulary list, and renders the light markup the model is asked to use.
package vocab

import "strings"

// Marker introduces the vocabulary list at the end of a model answer.
const Marker = "VOCABULARIES:"

// Reply is a parsed model answer.
type Reply struct {
	Content      string
	Vocabularies []string
}

// Parse splits text on the first occurrence of Marker. The part before it,
// trimmed, is the content. The part after it is split on commas into trimmed
// terms. Without a marker, or with the marker as the very last text, the list
// is empty; a blank remainder yields a single empty term.
func Parse(text string) Reply {
	before, after, found := strings.Cut(text, Marker)
	reply := Reply{
		Content:      strings.TrimSpace(before),
		Vocabularies: []string{},
	}
	if !found {
		return reply
	}
	if after == "" {
		return reply
	}
	for _, term := range strings.Split(strings.TrimSpace(after), ",") {
		reply.Vocabularies = append(reply.Vocabularies, strings.TrimSpace(term))
	}
	return reply
}
