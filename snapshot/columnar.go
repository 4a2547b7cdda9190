package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	safemath "github.com/luxfi/warp/utils/math"
)

// Fixed-size row and header layouts for the persisted columnar snapshot
// format (spec.md §6.2). Everything multi-byte is little-endian; every
// table is sorted ascending by id so a reader can binary-search without
// decoding the whole file.
const (
	Magic      = "WSC\x00\x01\x00\x00\x00"
	HeaderSize = 128

	NodeRowSize   = 64  // node_id[32] + type_id[32]
	EdgeRowSize   = 128 // edge_id[32] + from[32] + to[32] + type_id[32]
	RangeSize     = 16  // start u64 + len u64
	AttKeyRowSize = 40  // owner_kind(1) + plane(1) + reserved(6) + owner_id[32]
	AttRowSize    = 56  // tag(1) + reserved(7) + type_or_warp_hash[32] + blob_offset u64 + blob_length u64

	// warp_id[32] + root[32] + 3 counts (node/edge/att) + 7 offset/length
	// fields (nodes, edges, out-index, att-key, att, blob offset, blob
	// length), all u64.
	WarpDirEntrySize = 32 + 32 + 8*3 + 8*7
)

// AttTag discriminates an AttRow's value kind.
type AttTag uint8

const (
	AttTagAtom    AttTag = 0
	AttTagDescend AttTag = 1
)

// WarpDirEntry locates one warp's row tables and blob arena within the
// file (spec.md §6.2 "per warp: ... and a blob arena").
type WarpDirEntry struct {
	WarpID hash.WarpID
	Root   hash.NodeID

	NodeCount uint64
	EdgeCount uint64
	AttCount  uint64

	NodesOffset    uint64
	EdgesOffset    uint64
	OutIndexOffset uint64 // one Range per node, same order as the node table
	AttKeyOffset   uint64 // parallel to AttOffset, same count
	AttOffset      uint64
	BlobOffset     uint64
	BlobLength     uint64
}

// File is the fully decoded in-memory form of a columnar snapshot file.
type File struct {
	SchemaHash hash.Hash
	Tick       uint64
	Warps      []WarpDirEntry
	// Raw per-warp row bytes, indexed the same as Warps.
	NodeRows [][]byte
	EdgeRows [][]byte
	OutIndex [][]Range
	AttKeys  [][]hash.AttachmentKey
	AttRows  [][]byte
	Blobs    [][]byte
}

// Range is a {start, len} pair into a row table.
type Range struct {
	Start uint64
	Len   uint64
}

// EncodeUniverse serializes every instance in u into the columnar format,
// warps ordered ascending by WarpID (spec.md §6.2).
func EncodeUniverse(u *graph.Universe, schemaHash hash.Hash, tick uint64) ([]byte, error) {
	warpIDs := u.WarpIDs()

	type built struct {
		dir      WarpDirEntry
		nodeRows []byte
		edgeRows []byte
		outIdx   []byte
		attKeys  []byte
		attRows  []byte
		blob     []byte
	}

	blocks := make([]built, 0, len(warpIDs))
	for _, wid := range warpIDs {
		store, ok := u.Store(wid)
		if !ok {
			return nil, fmt.Errorf("snapshot: universe has instance %s with no store", wid)
		}
		inst, _ := u.Instance(wid)

		nodes := store.Nodes()
		nodeRows := make([]byte, 0, len(nodes)*NodeRowSize)
		outIdx := make([]byte, 0, len(nodes)*RangeSize)
		edgeRows := make([]byte, 0)
		edgeCount := uint64(0)
		for _, n := range nodes {
			rec, _ := store.GetNode(n)
			nodeRows = append(nodeRows, n.Hash().Bytes()...)
			nodeRows = append(nodeRows, rec.TypeID.Hash().Bytes()...)

			out := store.OutEdges(n)
			start := edgeCount
			for _, e := range out {
				edgeRows = append(edgeRows, e.ID.Hash().Bytes()...)
				edgeRows = append(edgeRows, n.Hash().Bytes()...)
				edgeRows = append(edgeRows, e.To.Hash().Bytes()...)
				edgeRows = append(edgeRows, e.TypeID.Hash().Bytes()...)
				edgeCount++
			}
			outIdx = append(outIdx, u64le(start)...)
			outIdx = append(outIdx, u64le(edgeCount-start)...)
		}

		keys := store.AttachmentKeys()
		attKeyRows := make([]byte, 0, len(keys)*AttKeyRowSize)
		attRows := make([]byte, 0, len(keys)*AttRowSize)
		var blob []byte
		for _, k := range keys {
			v, _ := store.GetAttachment(k)
			attKeyRows = append(attKeyRows, encodeAttKeyRow(k)...)

			var tag AttTag
			var typeOrWarp hash.Hash
			var entryBlob []byte
			switch av := v.(type) {
			case graph.Atom:
				tag = AttTagAtom
				typeOrWarp = av.TypeID.Hash()
				entryBlob = av.Bytes
			case graph.Descend:
				tag = AttTagDescend
				typeOrWarp = av.ChildWarp.Hash()
			}
			offset := uint64(len(blob))
			length := uint64(len(entryBlob))
			blob = append(blob, entryBlob...)
			if pad := (8 - len(entryBlob)%8) % 8; pad != 0 {
				blob = append(blob, make([]byte, pad)...)
			}

			row := make([]byte, 0, AttRowSize)
			row = append(row, byte(tag))
			row = append(row, make([]byte, 7)...)
			row = append(row, typeOrWarp.Bytes()...)
			row = append(row, u64le(offset)...)
			row = append(row, u64le(length)...)
			attRows = append(attRows, row...)
		}

		blocks = append(blocks, built{
			dir: WarpDirEntry{
				WarpID:    wid,
				Root:      inst.Root,
				NodeCount: uint64(len(nodes)),
				EdgeCount: edgeCount,
				AttCount:  uint64(len(keys)),
			},
			nodeRows: nodeRows,
			edgeRows: edgeRows,
			outIdx:   outIdx,
			attKeys:  attKeyRows,
			attRows:  attRows,
			blob:     blob,
		})
	}

	// cursor walks forward by each block's row/blob table sizes in turn;
	// Add64 catches the file growing past uint64 range instead of silently
	// wrapping every downstream offset into a corrupt layout.
	warpDirOffset := uint64(HeaderSize)
	cursor, err := safemath.Add64(warpDirOffset, uint64(len(blocks))*WarpDirEntrySize)
	if err != nil {
		return nil, fmt.Errorf("snapshot: warp directory offset: %w", err)
	}
	for i := range blocks {
		blocks[i].dir.NodesOffset = cursor
		if cursor, err = safemath.Add64(cursor, uint64(len(blocks[i].nodeRows))); err != nil {
			return nil, fmt.Errorf("snapshot: nodes offset for warp %d: %w", i, err)
		}
		blocks[i].dir.EdgesOffset = cursor
		if cursor, err = safemath.Add64(cursor, uint64(len(blocks[i].edgeRows))); err != nil {
			return nil, fmt.Errorf("snapshot: edges offset for warp %d: %w", i, err)
		}
		blocks[i].dir.OutIndexOffset = cursor
		if cursor, err = safemath.Add64(cursor, uint64(len(blocks[i].outIdx))); err != nil {
			return nil, fmt.Errorf("snapshot: out-index offset for warp %d: %w", i, err)
		}
		blocks[i].dir.AttKeyOffset = cursor
		if cursor, err = safemath.Add64(cursor, uint64(len(blocks[i].attKeys))); err != nil {
			return nil, fmt.Errorf("snapshot: attachment-key offset for warp %d: %w", i, err)
		}
		blocks[i].dir.AttOffset = cursor
		if cursor, err = safemath.Add64(cursor, uint64(len(blocks[i].attRows))); err != nil {
			return nil, fmt.Errorf("snapshot: attachment offset for warp %d: %w", i, err)
		}
		blocks[i].dir.BlobOffset = cursor
		blocks[i].dir.BlobLength = uint64(len(blocks[i].blob))
		if cursor, err = safemath.Add64(cursor, blocks[i].dir.BlobLength); err != nil {
			return nil, fmt.Errorf("snapshot: blob offset for warp %d: %w", i, err)
		}
	}

	out := make([]byte, 0, cursor)
	out = append(out, []byte(Magic)...)
	out = append(out, schemaHash.Bytes()...)
	out = append(out, u64le(tick)...)
	out = append(out, u64le(uint64(len(blocks)))...)
	out = append(out, u64le(warpDirOffset)...)
	out = append(out, make([]byte, 64)...) // reserved
	if len(out) != HeaderSize {
		return nil, fmt.Errorf("snapshot: internal error building header, got %d bytes", len(out))
	}

	for _, b := range blocks {
		out = append(out, encodeWarpDirEntry(b.dir)...)
	}
	for _, b := range blocks {
		out = append(out, b.nodeRows...)
		out = append(out, b.edgeRows...)
		out = append(out, b.outIdx...)
		out = append(out, b.attKeys...)
		out = append(out, b.attRows...)
		out = append(out, b.blob...)
	}
	return out, nil
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func encodeAttKeyRow(k hash.AttachmentKey) []byte {
	row := make([]byte, AttKeyRowSize)
	row[0] = byte(k.Owner)
	row[1] = byte(k.Plane)
	var ownerID hash.Hash
	if k.Owner == hash.OwnerEdge {
		ownerID = k.EdgeOwner.Hash()
	} else {
		ownerID = k.NodeOwner.Hash()
	}
	copy(row[8:40], ownerID.Bytes())
	return row
}

func encodeWarpDirEntry(e WarpDirEntry) []byte {
	row := make([]byte, 0, WarpDirEntrySize)
	row = append(row, e.WarpID.Hash().Bytes()...)
	row = append(row, e.Root.Hash().Bytes()...)
	row = append(row, u64le(e.NodeCount)...)
	row = append(row, u64le(e.EdgeCount)...)
	row = append(row, u64le(e.AttCount)...)
	row = append(row, u64le(e.NodesOffset)...)
	row = append(row, u64le(e.EdgesOffset)...)
	row = append(row, u64le(e.OutIndexOffset)...)
	row = append(row, u64le(e.AttKeyOffset)...)
	row = append(row, u64le(e.AttOffset)...)
	row = append(row, u64le(e.BlobOffset)...)
	row = append(row, u64le(e.BlobLength)...)
	return row
}
