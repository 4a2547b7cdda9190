package snapshot

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	safemath "github.com/luxfi/warp/utils/math"
)

// ValidationError is a typed columnar-format validation failure (spec.md
// §6.2 "Validation must detect...").
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "snapshot: " + e.Reason }

func fail(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// DecodeUniverse parses and validates a columnar snapshot file, returning
// a freshly populated Universe. Every check in spec.md §6.2's validation
// list runs before any data is trusted.
func DecodeUniverse(data []byte) (u *graph.Universe, schemaHash hash.Hash, tick uint64, err error) {
	if len(data) < HeaderSize {
		return nil, hash.Hash{}, 0, fail("file shorter than header (%d bytes)", len(data))
	}
	if string(data[0:8]) != Magic {
		return nil, hash.Hash{}, 0, fail("bad magic")
	}
	schemaHash = hash.FromBytes(data[8:40])
	tick = readU64(data, 40)
	warpCount := readU64(data, 48)
	warpDirOffset := readU64(data, 56)

	if warpCount > math.MaxInt32 {
		return nil, hash.Hash{}, 0, fail("warp_count overflows addressable range")
	}
	warpDirSize, err := safemath.Mul64(warpCount, WarpDirEntrySize)
	if err != nil {
		return nil, hash.Hash{}, 0, fail("warp directory size overflows")
	}
	dirEnd, err := safemath.Add64(warpDirOffset, warpDirSize)
	if err != nil || dirEnd > uint64(len(data)) {
		return nil, hash.Hash{}, 0, fail("warp directory out of bounds")
	}

	u = graph.NewUniverse()
	for i := uint64(0); i < warpCount; i++ {
		entryOff := warpDirOffset + i*WarpDirEntrySize
		dir, derr := decodeWarpDirEntry(data[entryOff : entryOff+WarpDirEntrySize])
		if derr != nil {
			return nil, hash.Hash{}, 0, derr
		}
		if err := decodeWarpBlock(u, data, dir); err != nil {
			return nil, hash.Hash{}, 0, err
		}
	}
	// The warp directory carries no parent key; rebuild each child
	// instance's from the Descend attachment that links it.
	for _, wid := range u.WarpIDs() {
		store := u.MustStore(wid)
		for _, key := range store.AttachmentKeys() {
			val, _ := store.GetAttachment(key)
			if d, ok := val.(graph.Descend); ok {
				if child, ok := u.Instance(d.ChildWarp); ok {
					child.ParentKey = key
					u.UpsertInstance(child)
				}
			}
		}
	}
	return u, schemaHash, tick, nil
}

func readU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

func decodeWarpDirEntry(row []byte) (WarpDirEntry, error) {
	if len(row) != WarpDirEntrySize {
		return WarpDirEntry{}, fail("malformed warp directory entry")
	}
	return WarpDirEntry{
		WarpID:         hash.WarpID(hash.FromBytes(row[0:32])),
		Root:           hash.NodeID(hash.FromBytes(row[32:64])),
		NodeCount:      readU64(row, 64),
		EdgeCount:      readU64(row, 72),
		AttCount:       readU64(row, 80),
		NodesOffset:    readU64(row, 88),
		EdgesOffset:    readU64(row, 96),
		OutIndexOffset: readU64(row, 104),
		AttKeyOffset:   readU64(row, 112),
		AttOffset:      readU64(row, 120),
		BlobOffset:     readU64(row, 128),
		BlobLength:     readU64(row, 136),
	}, nil
}

// tableBounds checked-multiplies count*rowSize and checked-adds it to
// offset, catching both a row count large enough to overflow the table's
// byte size and an offset large enough to overflow the table's end.
func tableBounds(offset, count, rowSize uint64) (uint64, error) {
	size, err := safemath.Mul64(count, rowSize)
	if err != nil {
		return 0, err
	}
	return safemath.Add64(offset, size)
}

func decodeWarpBlock(u *graph.Universe, data []byte, dir WarpDirEntry) error {
	total := uint64(len(data))

	nodesEnd, err := tableBounds(dir.NodesOffset, dir.NodeCount, NodeRowSize)
	if err != nil || nodesEnd > total {
		return fail("warp %s: node rows out of bounds", dir.WarpID)
	}
	edgesEnd, err := tableBounds(dir.EdgesOffset, dir.EdgeCount, EdgeRowSize)
	if err != nil || edgesEnd > total {
		return fail("warp %s: edge rows out of bounds", dir.WarpID)
	}
	outIdxEnd, err := tableBounds(dir.OutIndexOffset, dir.NodeCount, RangeSize)
	if err != nil || outIdxEnd > total {
		return fail("warp %s: out-edge index out of bounds", dir.WarpID)
	}
	attKeyEnd, err := tableBounds(dir.AttKeyOffset, dir.AttCount, AttKeyRowSize)
	if err != nil || attKeyEnd > total {
		return fail("warp %s: attachment key rows out of bounds", dir.WarpID)
	}
	attEnd, err := tableBounds(dir.AttOffset, dir.AttCount, AttRowSize)
	if err != nil || attEnd > total {
		return fail("warp %s: attachment rows out of bounds", dir.WarpID)
	}
	blobEnd, err := safemath.Add64(dir.BlobOffset, dir.BlobLength)
	if err != nil || blobEnd > total {
		return fail("warp %s: blob arena out of bounds", dir.WarpID)
	}

	u.UpsertInstance(graph.Instance{WarpID: dir.WarpID, Root: dir.Root})
	store := u.MustStore(dir.WarpID)

	var lastNode *hash.NodeID
	nodeIDs := make([]hash.NodeID, dir.NodeCount)
	for i := uint64(0); i < dir.NodeCount; i++ {
		off := dir.NodesOffset + i*NodeRowSize
		id := hash.NodeID(hash.FromBytes(data[off : off+32]))
		typeID := hash.TypeID(hash.FromBytes(data[off+32 : off+64]))
		if lastNode != nil && id.Compare(*lastNode) <= 0 {
			return fail("warp %s: nodes out of order at index %d", dir.WarpID, i)
		}
		store.UpsertNode(id, graph.NodeRecord{TypeID: typeID})
		nodeIDs[i] = id
		lastNode = &nodeIDs[i]
	}
	if dir.NodeCount > 0 {
		found := false
		for _, id := range nodeIDs {
			if id == dir.Root {
				found = true
				break
			}
		}
		if !found {
			return fail("warp %s: root node not present in node table", dir.WarpID)
		}
	}

	for i := uint64(0); i < dir.NodeCount; i++ {
		rOff := dir.OutIndexOffset + i*RangeSize
		start := readU64(data, int(rOff))
		length := readU64(data, int(rOff+8))
		end, err := safemath.Add64(start, length)
		if err != nil || end > dir.EdgeCount {
			return fail("warp %s: out-edge range for node %d out of bounds", dir.WarpID, i)
		}
		from := nodeIDs[i]
		var lastEdge *hash.EdgeID
		for j := start; j < end; j++ {
			off := dir.EdgesOffset + j*EdgeRowSize
			edgeID := hash.EdgeID(hash.FromBytes(data[off : off+32]))
			rowFrom := hash.NodeID(hash.FromBytes(data[off+32 : off+64]))
			to := hash.NodeID(hash.FromBytes(data[off+64 : off+96]))
			typeID := hash.TypeID(hash.FromBytes(data[off+96 : off+128]))
			if rowFrom != from {
				return fail("warp %s: edge row %d 'from' does not match its out-index owner", dir.WarpID, j)
			}
			if lastEdge != nil && edgeID.Compare(*lastEdge) <= 0 {
				return fail("warp %s: edges out of order under node %d", dir.WarpID, i)
			}
			if err := store.InsertEdge(from, graph.EdgeRecord{ID: edgeID, To: to, TypeID: typeID}); err != nil {
				return fail("warp %s: %v", dir.WarpID, err)
			}
			e := edgeID
			lastEdge = &e
		}
	}

	for i := uint64(0); i < dir.AttCount; i++ {
		keyOff := dir.AttKeyOffset + i*AttKeyRowSize
		keyRow := data[keyOff : keyOff+AttKeyRowSize]
		ownerKind := hash.OwnerKind(keyRow[0])
		plane := hash.Plane(keyRow[1])
		for _, b := range keyRow[2:8] {
			if b != 0 {
				return fail("warp %s: attachment key row %d has nonzero reserved bytes", dir.WarpID, i)
			}
		}
		ownerID := hash.FromBytes(keyRow[8:40])

		var key hash.AttachmentKey
		switch ownerKind {
		case hash.OwnerNode:
			key = hash.NodeAttachmentKey(hash.NodeID(ownerID), plane)
		case hash.OwnerEdge:
			key = hash.EdgeAttachmentKey(hash.EdgeID(ownerID), plane)
		default:
			return fail("warp %s: attachment key row %d has invalid owner kind %d", dir.WarpID, i, ownerKind)
		}

		attOff := dir.AttOffset + i*AttRowSize
		row := data[attOff : attOff+AttRowSize]
		tag := AttTag(row[0])
		for _, b := range row[1:8] {
			if b != 0 {
				return fail("warp %s: attachment row %d has nonzero reserved bytes", dir.WarpID, i)
			}
		}
		typeOrWarp := hash.FromBytes(row[8:40])
		blobOffset := readU64(row, 40)
		blobLength := readU64(row, 48)

		blobAbs, err := safemath.Add64(dir.BlobOffset, blobOffset)
		if err != nil {
			return fail("warp %s: attachment row %d blob offset overflow", dir.WarpID, i)
		}
		blobEndAbs, err := safemath.Add64(blobAbs, blobLength)
		if err != nil || blobEndAbs > dir.BlobOffset+dir.BlobLength {
			return fail("warp %s: attachment row %d blob extends beyond arena", dir.WarpID, i)
		}
		blobBytes := data[blobAbs:blobEndAbs]

		switch tag {
		case AttTagAtom:
			store.SetAttachment(key, graph.Atom{TypeID: hash.TypeID(typeOrWarp), Bytes: append([]byte(nil), blobBytes...)})
		case AttTagDescend:
			store.SetAttachment(key, graph.Descend{ChildWarp: hash.WarpID(typeOrWarp)})
		default:
			return fail("warp %s: attachment row %d has invalid tag %d", dir.WarpID, i, tag)
		}
	}

	return nil
}
