// Package domain models kinetic-event reports and the values the fusion and
// assessment stages exchange.
//
// # Signals
//
// A signal is one short textual report from a web-news feed or a messaging
// channel. Signals arrive as flat JSON:
//
//	{"id":"...","source_type":"MESSAGING","source_name":"@channel",
//	 "published_at":"2024-03-05 14:10","text":"...","embedding":[...]}
//
// The id is optional. When absent it is derived from
// source_type|source_name|published_at|text (see [SignalID]) so redelivered
// reports keep their identity. The embedding is optional on the wire; the
// fusion stage resolves missing vectors from the embedding index.
//
// # Timestamps
//
// published_at arrives in whatever format the upstream fetcher saw. Parsing
// walks an ordered list of layouts ([DefaultTimeParsers]) and returns a tagged
// [Timestamp] that is either valid or unparseable. Callers decide what an
// unparseable timestamp means; the fusion engine treats it as "recent" and the
// kinetic probe accepts the reading with an explanatory reason.
//
// # Keyword tags
//
// [KeywordExtractor] tags text with LOC:, UNIT:, WEAP:, ACT: and DATE: values
// using case-insensitive substring containment against fixed vocabularies.
// DATE tags normalise "05/03" and "March 5" to the same "DATE:05/03" value.
//
// # Extractor contract
//
// The language-model extractor is an external collaborator. Its per-event
// output is decoded and schema-checked at the boundary by [DecodeExtraction];
// nothing downstream probes raw JSON maps.
package domain
