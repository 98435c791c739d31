// Package tests exercises the transport end to end through its public API:
// producer and consumer handles over real files, crash recovery, epoch
// changes, and the bit-level format guarantees independent readers rely on.
package tests

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	otlpmmap "github.com/jsuereth/otlp-mmap"
)

func fixedRing(slots, slotSize uint64) otlpmmap.Layout {
	return otlpmmap.Layout{Sections: []otlpmmap.Section{{
		Kind: otlpmmap.SectionRing,
		Ring: otlpmmap.RingConfig{Slots: slots, SlotSize: slotSize, Framing: otlpmmap.FramingFixed},
	}}}
}

func varintRing(slots, slotSize uint64) otlpmmap.Layout {
	return otlpmmap.Layout{Sections: []otlpmmap.Section{{
		Kind: otlpmmap.SectionRing,
		Ring: otlpmmap.RingConfig{Slots: slots, SlotSize: slotSize, Framing: otlpmmap.FramingVarint},
	}}}
}

func dictOnly(capacity uint64) otlpmmap.Layout {
	return otlpmmap.Layout{Sections: []otlpmmap.Section{{
		Kind: otlpmmap.SectionDict,
		Dict: otlpmmap.DictConfig{Capacity: capacity},
	}}}
}

// TestSingleWriterSingleReader: five fixed u64 bodies through a 4-slot ring,
// consumed in lockstep, arrive in exact publication order.
func TestSingleWriterSingleReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.otlp")
	layout := fixedRing(4, 8)

	w, err := otlpmmap.OpenWriter(path, layout)
	require.NoError(t, err)
	defer w.Close()

	r, err := otlpmmap.OpenReader(path, layout)
	require.NoError(t, err)
	defer r.Close()

	var got [][]byte
	for i := 1; i <= 5; i++ {
		body := bytes.Repeat([]byte{byte(i)}, 8)
		require.NoError(t, w.Ring(0).TryAppend(body))

		out, idx, ok, err := r.Ring(0).TryNext()
		require.NoError(t, err)
		require.True(t, ok, "value %d not readable", i)
		got = append(got, append([]byte(nil), out...))
		r.Ring(0).Advance(idx)
	}

	for i, body := range got {
		require.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, 8), body, "value %d", i+1)
	}

	_, _, ok, err := r.Ring(0).TryNext()
	require.NoError(t, err)
	require.False(t, ok, "drained ring still readable")
}

// TestBackPressure: with the reader paused, the fifth claim into a 4-slot
// ring reports saturation; consuming one slot readmits the writer, and
// nothing is lost or reordered.
func TestBackPressure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.otlp")
	layout := fixedRing(4, 8)

	w, err := otlpmmap.OpenWriter(path, layout)
	require.NoError(t, err)
	defer w.Close()

	r, err := otlpmmap.OpenReader(path, layout)
	require.NoError(t, err)
	defer r.Close()

	value := func(i int) []byte { return bytes.Repeat([]byte{byte(i)}, 8) }

	for i := 1; i <= 4; i++ {
		require.NoError(t, w.Ring(0).TryAppend(value(i)))
	}
	err = w.Ring(0).TryAppend(value(5))
	require.ErrorIs(t, err, otlpmmap.ErrRingFull)

	out, idx, ok, err := r.Ring(0).TryNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value(1), out)
	r.Ring(0).Advance(idx)

	require.NoError(t, w.Ring(0).TryAppend(value(5)))

	for i := 2; i <= 5; i++ {
		out, idx, ok, err := r.Ring(0).TryNext()
		require.NoError(t, err)
		require.True(t, ok, "value %d", i)
		require.Equal(t, value(i), out, "value %d", i)
		r.Ring(0).Advance(idx)
	}
}

// TestDictionaryStability: appends straddling every varint width boundary
// produce strictly increasing, contiguous offsets, each re-readable bit for
// bit.
func TestDictionaryStability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource.otlp")
	layout := dictOnly(1 << 20)

	w, err := otlpmmap.OpenWriter(path, layout)
	require.NoError(t, err)
	defer w.Close()

	r, err := otlpmmap.OpenReader(path, layout)
	require.NoError(t, err)
	defer r.Close()

	varintLen := func(v int) uint64 {
		n := uint64(1)
		for v >= 0x80 {
			v >>= 7
			n++
		}
		return n
	}

	lengths := []int{1, 127, 128, 16383, 16384}
	var offsets []uint64
	var payloads [][]byte
	for i, l := range lengths {
		p := bytes.Repeat([]byte{byte('A' + i)}, l)
		off, err := w.Dict(0).Append(p)
		require.NoError(t, err)
		offsets = append(offsets, off)
		payloads = append(payloads, p)
	}

	for i := 0; i < len(offsets)-1; i++ {
		require.Less(t, offsets[i], offsets[i+1])
		require.Equal(t, offsets[i]+varintLen(lengths[i])+uint64(lengths[i]), offsets[i+1],
			"entries %d and %d not contiguous", i, i+1)
	}

	for i, off := range offsets {
		got, err := r.Dict(0).ReadAt(off)
		require.NoError(t, err)
		require.True(t, bytes.Equal(got, payloads[i]), "entry %d differs", i)
	}
}

// TestEpochChange: a producer restart under a fresh epoch invalidates the
// attached reader; after Reset it consumes exactly the new lifetime's
// records from a clean cursor.
func TestEpochChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.otlp")
	layout := varintRing(8, 64)

	w1, err := otlpmmap.OpenWriter(path, layout, otlpmmap.WithEpoch(1))
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, w1.Ring(0).TryAppend([]byte{byte(i)}))
	}

	r, err := otlpmmap.OpenReader(path, layout)
	require.NoError(t, err)
	defer r.Close()
	for i := 1; i <= 2; i++ {
		_, idx, ok, err := r.Ring(0).TryNext()
		require.NoError(t, err)
		require.True(t, ok)
		r.Ring(0).Advance(idx)
	}
	require.NoError(t, w1.Close())

	w2, err := otlpmmap.OpenWriter(path, layout, otlpmmap.WithFreshEpoch(), otlpmmap.WithEpoch(2))
	require.NoError(t, err)
	defer w2.Close()
	require.NoError(t, w2.Ring(0).TryAppend([]byte{101}))
	require.NoError(t, w2.Ring(0).TryAppend([]byte{102}))

	_, _, _, err = r.Ring(0).TryNext()
	require.ErrorIs(t, err, otlpmmap.ErrVersionMismatch)

	require.NoError(t, r.Reset())
	require.Equal(t, uint64(2), r.Epoch())

	for i, want := range []byte{101, 102} {
		body, idx, ok, err := r.Ring(0).TryNext()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(i), idx)
		require.Equal(t, want, body[0])
		r.Ring(0).Advance(idx)
	}
	_, _, ok, err := r.Ring(0).TryNext()
	require.NoError(t, err)
	require.False(t, ok)
}

// TestCrashSurvivability: records published by a writer that never closed
// (the crash model: the mapping dies with the process, the pages do not)
// are all recovered by a reader attaching afterwards.
func TestCrashSurvivability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.otlp")
	layout := varintRing(16, 64)

	w, err := otlpmmap.OpenWriter(path, layout)
	require.NoError(t, err)
	// No Close: the handle is abandoned like a killed process would leave
	// it. The advisory lock does not gate readers.
	const k = 10
	for i := 0; i < k; i++ {
		require.NoError(t, w.Ring(0).TryAppend([]byte{byte(i), 0xEE}))
	}

	r, err := otlpmmap.OpenReader(path, layout)
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < k; i++ {
		body, idx, ok, err := r.Ring(0).TryNext()
		require.NoError(t, err)
		require.True(t, ok, "record %d lost", i)
		require.Equal(t, int64(i), idx)
		require.Equal(t, []byte{byte(i), 0xEE}, body)
		r.Ring(0).Advance(idx)
	}

	// The dead producer publishes nothing further.
	_, _, ok, err := r.Ring(0).TryNext()
	require.NoError(t, err)
	require.False(t, ok)

	_ = w // keep the abandoned handle alive to the end of the test
}

// TestDictToRingReference: a ring record carrying a dictionary offset is
// only ever observed after the dictionary bytes are complete.
func TestDictToRingReference(t *testing.T) {
	dir := t.TempDir()

	w, err := otlpmmap.OpenDirectoryWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	r, err := otlpmmap.OpenDirectoryReader(dir)
	require.NoError(t, err)
	defer r.Close()

	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		for i := 0; i < 2000; i++ {
			payload := bytes.Repeat([]byte{byte(i)}, 1+i%300)
			off, err := w.Resource.Append(payload)
			if err != nil {
				errs <- err
				return
			}
			var rec [8]byte
			binary.LittleEndian.PutUint64(rec[:], off)
			if err := w.Spans.Append(rec[:], nil); err != nil {
				errs <- err
				return
			}
		}
	}()

	seen := 0
	for seen < 2000 {
		body, idx, ok, err := r.Spans.TryNext()
		require.NoError(t, err)
		if !ok {
			continue
		}
		off := binary.LittleEndian.Uint64(body)
		entry, err := r.Resource.ReadAt(off)
		require.NoError(t, err, "entry for record %d not decodable", seen)
		require.NotEmpty(t, entry)
		require.Equal(t, byte(seen), entry[0], "record %d references wrong entry", seen)
		r.Spans.Advance(idx)
		seen++
	}
	require.NoError(t, <-errs)
}

// TestReaderLayoutAbort double-checks the reader-side attach contract used
// by the scenarios above: disagreeing geometry aborts instead of repairing.
func TestReaderLayoutAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.otlp")

	w, err := otlpmmap.OpenWriter(path, varintRing(8, 64))
	require.NoError(t, err)
	defer w.Close()

	_, err = otlpmmap.OpenReader(path, varintRing(8, 32))
	require.ErrorIs(t, err, otlpmmap.ErrLayoutMismatch)
}
