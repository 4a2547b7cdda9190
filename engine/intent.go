package engine

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	cockroacherrors "github.com/cockroachdb/errors"

	"github.com/luxfi/warp/hash"
)

// envelopeVersion is the only wire version this engine accepts. Bumping it
// is a breaking change to every caller's ingest_intent bytes.
const envelopeVersion = 1

// envelopeHeaderLen is version(1) + crc32(4).
const envelopeHeaderLen = 5

// TxId names one open tick, from BeginTick through CommitTick.
type TxId uint64

// Ack confirms bytes were accepted into the current tick's inbox.
type Ack struct {
	IntentID hash.IntentID
}

// DuplicateOf reports that bytes were already ingested (in this tick or an
// earlier one still inside the dedup window) under Tx.
type DuplicateOf struct {
	IntentID hash.IntentID
	Tx       TxId
}

type intent struct {
	id      hash.IntentID
	payload []byte
}

// txState is the engine's one open tick: an id and its accumulated, not yet
// ordered, inbox.
type txState struct {
	id    TxId
	inbox []intent
}

// EncodeEnvelope packs payload into the wire format ingest_intent expects:
// version(1) || crc32(4 little-endian) || payload. Exposed so callers (and
// tests) can build valid intent bytes without reimplementing the checksum.
func EncodeEnvelope(payload []byte) []byte {
	out := make([]byte, envelopeHeaderLen+len(payload))
	out[0] = envelopeVersion
	binary.LittleEndian.PutUint32(out[1:5], crc32.ChecksumIEEE(payload))
	copy(out[envelopeHeaderLen:], payload)
	return out
}

func decodeEnvelope(raw []byte) ([]byte, error) {
	if len(raw) < envelopeHeaderLen {
		return nil, cockroacherrors.Mark(&IngressError{Reason: "envelope shorter than header"}, markIngress)
	}
	if raw[0] != envelopeVersion {
		return nil, cockroacherrors.Mark(
			&IngressError{Reason: fmt.Sprintf("envelope version %d unsupported (want %d)", raw[0], envelopeVersion)},
			markIngress,
		)
	}
	payload := raw[envelopeHeaderLen:]
	want := binary.LittleEndian.Uint32(raw[1:5])
	if crc32.ChecksumIEEE(payload) != want {
		return nil, cockroacherrors.Mark(&IngressError{Reason: "payload checksum mismatch"}, markIngress)
	}
	return payload, nil
}

// BeginTick opens a new tick and returns its TxId. Only one tick may be open
// at a time: BeginTick returns ErrTickInProgress until the open tick's
// CommitTick succeeds. A failed CommitTick leaves its tx open with its inbox
// intact (see CommitTick).
func (e *Engine) BeginTick() (TxId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return 0, ErrTickInProgress
	}
	e.nextTx++
	e.current = &txState{id: e.nextTx}
	return e.current.id, nil
}

// IngestIntent validates and enqueues raw bytes into tx's inbox. intent_id
// is BLAKE3(raw) — the engine's content address covers the whole wire
// envelope, not just the decoded payload. The id is recorded only once the
// bytes decode successfully, so a byte-for-byte resubmission of accepted
// bytes is reported as DuplicateOf while that record is still cached, and
// bytes that fail to decode are not recorded at all (spec.md §6.1).
func (e *Engine) IngestIntent(tx TxId, raw []byte) (*Ack, *DuplicateOf, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.id != tx {
		return nil, nil, ErrUnknownTx
	}

	id := hash.NewIntentID(raw)
	if prevTx, ok := e.intentSeen.Get(id); ok {
		return nil, &DuplicateOf{IntentID: id, Tx: prevTx}, nil
	}

	payload, err := decodeEnvelope(raw)
	if err != nil {
		return nil, nil, err
	}

	e.current.inbox = append(e.current.inbox, intent{id: id, payload: payload})
	e.intentSeen.Put(id, tx)
	return &Ack{IntentID: id}, nil, nil
}
