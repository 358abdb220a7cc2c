package vm

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"layoutcore/internal/types"
)

// snapshotSchemaVersion changes whenever SnapshotData changes shape.
const snapshotSchemaVersion uint16 = 1

// SnapshotData is a serialized view of a Memory.
type SnapshotData struct {
	Schema  uint16
	Triple  string
	PtrSize int
	Allocs  []SnapshotAlloc
}

// SnapshotAlloc is one allocation in a snapshot.
type SnapshotAlloc struct {
	ID      uint64
	Kind    uint8
	Base    uint64
	Size    uint64
	Align   uint64
	Mutable bool
	Bytes   []byte
	// Init has one entry per byte.
	Init   []bool
	Relocs []SnapshotReloc
	// Fn is the label of the function a MemoryKindFn allocation holds.
	Fn string `msgpack:",omitempty"`
}

// SnapshotReloc records a pointer stored at Offset.
type SnapshotReloc struct {
	Offset uint64
	Alloc  uint64
	Target uint64 // offset inside Alloc
}

// Alloc returns the allocation with the given id.
func (s *SnapshotData) Alloc(id uint64) (*SnapshotAlloc, bool) {
	for i := range s.Allocs {
		if s.Allocs[i].ID == id {
			return &s.Allocs[i], true
		}
	}
	return nil, false
}

// Snapshot captures the live allocations of mem in creation order. in is used
// to label function allocations and may be nil.
func Snapshot(mem *Memory, in *types.Interner) *SnapshotData {
	data := &SnapshotData{
		Schema:  snapshotSchemaVersion,
		Triple:  mem.target.Triple,
		PtrSize: mem.target.PtrSize,
	}
	for _, a := range mem.Allocations() {
		sa := SnapshotAlloc{
			ID:      uint64(a.ID),
			Kind:    uint8(a.Kind),
			Base:    a.Base,
			Size:    a.Size,
			Align:   a.Align,
			Mutable: a.Mutable,
			Bytes:   a.Bytes(),
			Init:    append([]bool(nil), a.init...),
		}
		offsets := make([]uint64, 0, len(a.relocs))
		for off := range a.relocs {
			offsets = append(offsets, off)
		}
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
		for _, off := range offsets {
			p := a.relocs[off]
			sa.Relocs = append(sa.Relocs, SnapshotReloc{Offset: off, Alloc: uint64(p.Alloc), Target: p.Offset})
		}
		if fn, ok := a.Fn(); ok {
			sa.Fn = fnLabel(in, fn)
		}
		data.Allocs = append(data.Allocs, sa)
	}
	return data
}

func fnLabel(in *types.Interner, fn FnVal) string {
	if fn.Kind != FnValInstance {
		return fn.Name
	}
	if in == nil {
		return fn.Instance.Key()
	}
	return fn.Instance.Label(in)
}

// WriteSnapshot writes a snapshot of mem to w as msgpack in an lz4 frame.
func WriteSnapshot(w io.Writer, mem *Memory, in *types.Interner) (err error) {
	zw := lz4.NewWriter(w)
	defer func() {
		if closeErr := zw.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("snapshot: close frame: %w", closeErr)
		}
	}()
	if err := msgpack.NewEncoder(zw).Encode(Snapshot(mem, in)); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return nil
}

// ErrSnapshotSchema is returned for snapshots written by another schema version.
var ErrSnapshotSchema = errors.New("snapshot: unsupported schema version")

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*SnapshotData, error) {
	var data SnapshotData
	if err := msgpack.NewDecoder(lz4.NewReader(r)).Decode(&data); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if data.Schema != snapshotSchemaVersion {
		return nil, fmt.Errorf("%w %d", ErrSnapshotSchema, data.Schema)
	}
	return &data, nil
}
