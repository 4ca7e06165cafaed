// Package commitlog implements the content-addressed commit log carried on
// top of the DHT's store/find_value API (§10.5): a sentinel head pointer
// plus author-stamped commit records, never reaching into routing-table or
// storage internals directly.
package commitlog

import (
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ddcm-project/kadnode/dht"
)

// ErrNoCommits is returned by Latest when the head pointer has never been set.
var ErrNoCommits = errors.New("commitlog: no commits yet")

// ErrCommitMissing is returned by Latest when the head pointer resolves to a
// commit_id that storage no longer (or never did) hold.
var ErrCommitMissing = errors.New("commitlog: referenced commit not found")

// Backend is the subset of the DHT's public API the commit log depends on.
type Backend interface {
	StoreValue(key dht.Identifier, value []byte, cached bool) error
	FindValue(key dht.Identifier) ([]byte, bool)
}

// Record is the JSON shape of one commit: {data, lstcommit, time, author}.
type Record struct {
	Data      json.RawMessage  `json:"data"`
	LstCommit []dht.Identifier `json:"lstcommit"`
	Time      int64            `json:"time"`
	Author    dht.Identifier   `json:"author"`
}

// Log is the commit-log convenience layer bound to a Backend and this
// node's author identity.
type Log struct {
	backend Backend
	author  dht.Identifier
}

// New creates a Log that attributes its commits to author.
func New(backend Backend, author dht.Identifier) *Log {
	return &Log{backend: backend, author: author}
}

// Commit encodes data as a record, hashes the encoded record with a fresh
// SHA-1 instance per call (the source's single running hasher across
// commits is a bug and is deliberately not replicated — §9), stores the
// record under its hash, and repoints the head pointer at it.
func (l *Log) Commit(data any, cached bool) (dht.Identifier, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return dht.Identifier{}, fmt.Errorf("commitlog: encode data: %w", err)
	}
	record := Record{
		Data:      raw,
		LstCommit: []dht.Identifier{},
		Time:      time.Now().Unix(),
		Author:    l.author,
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return dht.Identifier{}, fmt.Errorf("commitlog: encode record: %w", err)
	}

	h := sha1.New()
	h.Write(encoded)
	var commitID dht.Identifier
	copy(commitID[:], h.Sum(nil))

	// The commit record itself is always stored locally, regardless of
	// cached: only the head-pointer update is gated by the caller's cached
	// argument (original_source/ddcm/Service.py's commit()).
	if err := l.backend.StoreValue(commitID, encoded, true); err != nil {
		return dht.Identifier{}, fmt.Errorf("commitlog: store commit: %w", err)
	}
	if err := l.backend.StoreValue(dht.ZeroID, commitID[:], cached); err != nil {
		return dht.Identifier{}, fmt.Errorf("commitlog: update head pointer: %w", err)
	}
	return commitID, nil
}

// Latest resolves the head pointer via find_value(0x00...00), then resolves
// and decodes the commit record it points to.
func (l *Log) Latest() (dht.Identifier, Record, error) {
	pointer, ok := l.backend.FindValue(dht.ZeroID)
	if !ok || len(pointer) != dht.IDLen {
		return dht.Identifier{}, Record{}, ErrNoCommits
	}
	var commitID dht.Identifier
	copy(commitID[:], pointer)

	payload, ok := l.backend.FindValue(commitID)
	if !ok {
		return dht.Identifier{}, Record{}, ErrCommitMissing
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return dht.Identifier{}, Record{}, fmt.Errorf("commitlog: decode record: %w", err)
	}
	return commitID, record, nil
}
