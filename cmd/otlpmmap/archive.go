package main

import (
	"encoding/binary"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	otlpmmap "github.com/jsuereth/otlp-mmap"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <telemetry-dir> <out.db>",
	Short: "Drain a telemetry directory into a bbolt database",
	Long: `archive captures everything a producer left in a telemetry directory.

Ring records land in one bucket per signal class, keyed by their monotonic
ring index; dictionary entries land in the resource and scope buckets,
keyed by their byte offset. The typical use is preserving the last seconds
of telemetry from a crashed process before its files are recycled.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return archive(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func archive(dir, out string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	tr, err := otlpmmap.OpenDirectoryReader(dir)
	if err != nil {
		return err
	}
	defer tr.Close()

	db, err := bolt.Open(out, 0644, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	key := func(v uint64) []byte {
		var k [8]byte
		binary.BigEndian.PutUint64(k[:], v)
		return k[:]
	}

	return db.Update(func(tx *bolt.Tx) error {
		rings := []struct {
			name string
			r    *otlpmmap.RingReader
		}{
			{"spans", tr.Spans},
			{"logs", tr.Logs},
			{"metrics", tr.Metrics},
		}
		for _, ring := range rings {
			b, err := tx.CreateBucketIfNotExists([]byte(ring.name))
			if err != nil {
				return err
			}
			n, err := ring.r.Consume(func(idx int64, body []byte) error {
				return b.Put(key(uint64(idx)), body)
			})
			if err != nil {
				return err
			}
			log.Infow("archived ring", "signal", ring.name, "records", n)
		}

		dicts := []struct {
			name string
			d    *otlpmmap.DictReader
		}{
			{"resource", tr.Resource},
			{"scope", tr.Scope},
		}
		for _, dict := range dicts {
			b, err := tx.CreateBucketIfNotExists([]byte(dict.name))
			if err != nil {
				return err
			}
			n := 0
			err = dict.d.Entries(func(offset uint64, body []byte) error {
				n++
				return b.Put(key(offset), body)
			})
			if err != nil {
				return err
			}
			log.Infow("archived dictionary", "name", dict.name, "entries", n)
		}
		return nil
	})
}
