package main

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	bolt "go.etcd.io/bbolt"

	otlpmmap "github.com/jsuereth/otlp-mmap"
)

func TestArchiveCapturesAbandonedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "telemetry")
	out := filepath.Join(t.TempDir(), "capture.db")

	w, err := otlpmmap.OpenDirectoryWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	resOff, err := w.Resource.Append([]byte("service-a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Scope.Append([]byte("http-scope")); err != nil {
		t.Fatal(err)
	}

	spans := [][]byte{[]byte("span-1"), []byte("span-2"), []byte("span-3")}
	for _, s := range spans {
		if err := w.Spans.TryAppend(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Logs.TryAppend([]byte("log-1")); err != nil {
		t.Fatal(err)
	}
	// The producer "crashes": no Close, the files stay behind.

	if err := archive(dir, out); err != nil {
		t.Fatalf("archive: %v", err)
	}

	db, err := bolt.Open(out, 0644, &bolt.Options{ReadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		var gotSpans [][]byte
		if err := tx.Bucket([]byte("spans")).ForEach(func(k, v []byte) error {
			gotSpans = append(gotSpans, append([]byte(nil), v...))
			return nil
		}); err != nil {
			return err
		}
		if diff := cmp.Diff(spans, gotSpans); diff != "" {
			t.Errorf("archived spans differ (-want +got):\n%s", diff)
		}

		var key [8]byte
		binary.BigEndian.PutUint64(key[:], resOff)
		if got := tx.Bucket([]byte("resource")).Get(key[:]); string(got) != "service-a" {
			t.Errorf("resource entry: %q", got)
		}

		if n := tx.Bucket([]byte("logs")).Stats().KeyN; n != 1 {
			t.Errorf("log records: %d", n)
		}
		if n := tx.Bucket([]byte("metrics")).Stats().KeyN; n != 0 {
			t.Errorf("metric records: %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = w
}

func TestRawInfoOnArchiveFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "telemetry")

	w, err := otlpmmap.OpenDirectoryWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := rawInfo(filepath.Join(dir, otlpmmap.SpansFile)); err != nil {
		t.Fatalf("rawInfo: %v", err)
	}
}
