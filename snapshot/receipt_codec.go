package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/internal/canon"
)

// ReceiptMode selects how much of a tick's commitment is persisted
// (spec.md §6.4).
type ReceiptMode uint8

const (
	// ReceiptFull persists every field: the three top-level hashes plus
	// every ReceiptEntry (scope, rule, compact id, blocked_by witnesses).
	ReceiptFull ReceiptMode = iota
	// ReceiptProof persists hashes and digests only — commit_hash,
	// state_root, emissions_digest, and the receipt's own Digest() — with
	// no per-entry payload bodies.
	ReceiptProof
	// ReceiptLight persists only commit_hash, emissions_digest, and
	// state_root.
	ReceiptLight
)

func (m ReceiptMode) String() string {
	switch m {
	case ReceiptFull:
		return "full"
	case ReceiptProof:
		return "proof"
	case ReceiptLight:
		return "light"
	default:
		return fmt.Sprintf("ReceiptMode(%d)", uint8(m))
	}
}

// receiptCodecTag versions the envelope's wire format independently of
// versionTag, since a receipt envelope is persisted separately from the
// columnar snapshot it accompanies.
const receiptCodecTag = "warp.snapshot.ReceiptEnvelopeV1\x00"

// ReceiptEnvelope is what gets persisted for one committed tick, at
// whatever ReceiptMode the caller chose (spec.md §6.4). Receipt only
// round-trips in ReceiptFull; ReceiptDigest only round-trips in
// ReceiptProof (where it is either Receipt.Digest() computed by the
// encoding caller, or the value read back by DecodeReceiptEnvelope).
type ReceiptEnvelope struct {
	Mode            ReceiptMode
	CommitHash      hash.Hash
	StateRoot       hash.Hash
	EmissionsDigest hash.Hash
	Receipt         TickReceipt
	ReceiptDigest   hash.Hash
}

// EncodeReceiptEnvelope serializes env per env.Mode. ReceiptFull's entry
// list is zstd-compressed before being written, since it is the one part
// of the envelope whose size scales with the tick's admitted-candidate
// count rather than being a fixed handful of hashes.
func EncodeReceiptEnvelope(env ReceiptEnvelope) ([]byte, error) {
	w := canon.NewWriter()
	w.Tag(receiptCodecTag)
	w.U8(uint8(env.Mode))
	w.Raw(env.CommitHash.Bytes())
	w.Raw(env.StateRoot.Bytes())
	w.Raw(env.EmissionsDigest.Bytes())

	switch env.Mode {
	case ReceiptLight:
		// Nothing beyond the three hashes already written.
	case ReceiptProof:
		w.Raw(env.Receipt.Digest().Bytes())
	case ReceiptFull:
		entries := canon.NewWriter()
		entries.U64(uint64(len(env.Receipt.Entries)))
		for _, e := range env.Receipt.Entries {
			entries.Raw(e.ScopeHash.Bytes())
			entries.U32(e.RuleID)
			entries.U32(uint32(e.CompactRuleID))
			entries.U64(uint64(len(e.BlockedBy)))
			for _, b := range e.BlockedBy {
				entries.U64(uint64(b))
			}
		}
		compressed, err := zstdCompress(entries.Bytes())
		if err != nil {
			return nil, fmt.Errorf("snapshot: compress receipt entries: %w", err)
		}
		w.Blob(compressed)
	default:
		return nil, fmt.Errorf("snapshot: unknown receipt mode %d", env.Mode)
	}
	return w.Bytes(), nil
}

// DecodeReceiptEnvelope parses bytes produced by EncodeReceiptEnvelope.
// Proof verification (spec.md §6.4 "Proof verification requires Full or
// Proof mode") compares a caller-recomputed TickReceipt.Digest() against
// env.Receipt.Digest() in Full mode, or against env.ReceiptDigest directly
// in Proof mode; Light mode carries neither and cannot be proof-verified.
func DecodeReceiptEnvelope(data []byte) (ReceiptEnvelope, error) {
	const headerLen = len(receiptCodecTag) + 1 + 32 + 32 + 32
	if len(data) < headerLen {
		return ReceiptEnvelope{}, fmt.Errorf("snapshot: receipt envelope shorter than header (%d < %d)", len(data), headerLen)
	}
	if string(data[:len(receiptCodecTag)]) != receiptCodecTag {
		return ReceiptEnvelope{}, fmt.Errorf("snapshot: receipt envelope has the wrong version tag")
	}
	off := len(receiptCodecTag)
	mode := ReceiptMode(data[off])
	off++

	var commitHash, stateRoot, emissionsDigest hash.Hash
	commitHash, off = readHash(data, off)
	stateRoot, off = readHash(data, off)
	emissionsDigest, off = readHash(data, off)

	env := ReceiptEnvelope{Mode: mode, CommitHash: commitHash, StateRoot: stateRoot, EmissionsDigest: emissionsDigest}

	switch mode {
	case ReceiptLight:
		return env, nil
	case ReceiptProof:
		if len(data) < off+32 {
			return ReceiptEnvelope{}, fmt.Errorf("snapshot: receipt envelope truncated before receipt digest")
		}
		env.ReceiptDigest, _ = readHash(data, off)
		return env, nil
	case ReceiptFull:
		blob, err := readBlob(data, off)
		if err != nil {
			return ReceiptEnvelope{}, fmt.Errorf("snapshot: read receipt entries blob: %w", err)
		}
		raw, err := zstdDecompress(blob)
		if err != nil {
			return ReceiptEnvelope{}, fmt.Errorf("snapshot: decompress receipt entries: %w", err)
		}
		entries, err := decodeReceiptEntries(raw)
		if err != nil {
			return ReceiptEnvelope{}, err
		}
		env.Receipt = TickReceipt{Entries: entries}
		return env, nil
	default:
		return ReceiptEnvelope{}, fmt.Errorf("snapshot: unknown receipt mode %d", mode)
	}
}

func readHash(data []byte, off int) (hash.Hash, int) {
	return hash.FromBytes(data[off : off+32]), off + 32
}

// readBlob reads canon.Writer.Blob's wire format (a little-endian u64
// length prefix followed by that many bytes) starting at off.
func readBlob(data []byte, off int) ([]byte, error) {
	if len(data) < off+8 {
		return nil, fmt.Errorf("blob length prefix truncated")
	}
	n := binary.LittleEndian.Uint64(data[off : off+8])
	start := off + 8
	end := start + int(n)
	if end > len(data) || end < start {
		return nil, fmt.Errorf("blob body truncated (want %d bytes)", n)
	}
	return data[start:end], nil
}

func decodeReceiptEntries(raw []byte) ([]ReceiptEntry, error) {
	r := bytes.NewReader(raw)
	count, err := readU64From(r)
	if err != nil {
		return nil, err
	}
	entries := make([]ReceiptEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var scopeBytes [32]byte
		if _, err := r.Read(scopeBytes[:]); err != nil {
			return nil, fmt.Errorf("snapshot: read receipt entry %d scope_hash: %w", i, err)
		}
		scopeHash := hash.FromBytes(scopeBytes[:])
		ruleID, err := readU32(r)
		if err != nil {
			return nil, err
		}
		compactRuleID, err := readU32(r)
		if err != nil {
			return nil, err
		}
		blockedByLen, err := readU64From(r)
		if err != nil {
			return nil, err
		}
		blockedBy := make([]int, blockedByLen)
		for j := range blockedBy {
			v, err := readU64From(r)
			if err != nil {
				return nil, err
			}
			blockedBy[j] = int(v)
		}
		entries = append(entries, ReceiptEntry{
			ScopeHash:     scopeHash,
			RuleID:        ruleID,
			CompactRuleID: hash.CompactRuleID(compactRuleID),
			BlockedBy:     blockedBy,
		})
	}
	return entries, nil
}

func readU64From(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := r.Read(buf[:]); err != nil {
		return 0, err
	}
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56, nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := r.Read(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func zstdCompress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func zstdDecompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(compressed, nil)
}
