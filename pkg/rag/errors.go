// Package rag holds the conversation pipeline: query rewriting,
// similarity retrieval, grounded answering, and the failure taxonomy the
// orchestrator translates for callers.
package rag

import "errors"

var (
	// ErrChatNotFound covers both a missing chat and a chat owned by
	// someone else. Callers cannot distinguish the two.
	ErrChatNotFound = errors.New("chat not found")

	// ErrDocumentNotFound is the same boundary applied to documents.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRetrievalUnavailable means the rewrite or search leg failed and
	// no grounding context could be produced.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrEngineUnavailable means the answer engine failed before
	// producing any output. A failure after the first increment is not an
	// error: the stream simply ends.
	ErrEngineUnavailable = errors.New("answer engine unavailable")

	// ErrPersistenceFailure means a turn could not be committed.
	ErrPersistenceFailure = errors.New("persistence failure")
)
