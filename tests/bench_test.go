package tests

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	otlpmmap "github.com/jsuereth/otlp-mmap"
)

// The benchmarks compare the transport's append path against writing the
// same records into a conventional embedded store. The interesting numbers
// are the ring's allocation count (zero) and the latency gap to anything
// that pays for a transaction per record.

func benchBody(i int) []byte {
	var b [64]byte
	binary.LittleEndian.PutUint64(b[:], uint64(i))
	return b[:]
}

func BenchmarkRingAppend(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.otlp")
	layout := varintRing(1<<16, 128)

	w, err := otlpmmap.OpenWriter(path, layout)
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	r, err := otlpmmap.OpenReader(path, layout)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	body := benchBody(0)
	b.ReportAllocs()
	b.SetBytes(int64(len(body)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := w.Ring(0).TryAppend(body); err != nil {
			// Saturated: drain everything and go on.
			b.StopTimer()
			if _, err := r.Ring(0).Consume(func(int64, []byte) error { return nil }); err != nil {
				b.Fatal(err)
			}
			b.StartTimer()
			if err := w.Ring(0).TryAppend(body); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkRingAppendConsume(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.otlp")
	layout := varintRing(1024, 128)

	w, err := otlpmmap.OpenWriter(path, layout)
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	r, err := otlpmmap.OpenReader(path, layout)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	body := benchBody(0)
	b.ReportAllocs()
	b.SetBytes(int64(len(body)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := w.Ring(0).TryAppend(body); err != nil {
			b.Fatal(err)
		}
		_, idx, ok, err := r.Ring(0).TryNext()
		if err != nil || !ok {
			b.Fatalf("ok=%v err=%v", ok, err)
		}
		r.Ring(0).Advance(idx)
	}
}

func BenchmarkDictAppend(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.otlp")
	layout := dictOnly(1 << 24)

	w, err := otlpmmap.OpenWriter(path, layout)
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	body := benchBody(0)
	b.ReportAllocs()
	b.SetBytes(int64(len(body)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := w.Dict(0).Append(body); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBoltPut is the baseline: the same 64-byte records into bbolt,
// batched 512 records per transaction to give it a fair shake.
func BenchmarkBoltPut(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.db")

	db, err := bolt.Open(path, 0644, &bolt.Options{
		NoSync:         true,
		NoFreelistSync: true,
	})
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	bucket := []byte("records")
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket(bucket)
		return err
	}); err != nil {
		b.Fatal(err)
	}

	body := benchBody(0)
	b.ReportAllocs()
	b.SetBytes(int64(len(body)))
	b.ResetTimer()

	const batch = 512
	for i := 0; i < b.N; i += batch {
		n := min(batch, b.N-i)
		err := db.Update(func(tx *bolt.Tx) error {
			bk := tx.Bucket(bucket)
			var key [8]byte
			for k := 0; k < n; k++ {
				binary.BigEndian.PutUint64(key[:], uint64(i+k))
				if err := bk.Put(key[:], body); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}
