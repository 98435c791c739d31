package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	otlpmmap "github.com/jsuereth/otlp-mmap"
)

var (
	dumpLayoutPath string
	dumpSection    int
	dumpFollow     bool
	dumpMax        int
	dumpHex        bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Drain a ring section and print its records",
	Long: `dump attaches as the consumer and prints every readable record.

Note that dump advances the file's reader cursor: records it prints are
consumed, and their slots return to the producer. Use it either on files
whose producer is gone, or as the actual collector during debugging.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layout, err := otlpmmap.LoadLayout(dumpLayoutPath)
		if err != nil {
			return err
		}
		return dump(args[0], layout)
	},
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpLayoutPath, "layout", "l", "", "YAML layout descriptor (required)")
	dumpCmd.MarkFlagRequired("layout")
	dumpCmd.Flags().IntVarP(&dumpSection, "section", "s", 0, "ring section index")
	dumpCmd.Flags().BoolVarP(&dumpFollow, "follow", "f", false, "keep waiting for new records")
	dumpCmd.Flags().IntVarP(&dumpMax, "max", "n", 0, "stop after this many records (0 = unlimited)")
	dumpCmd.Flags().BoolVar(&dumpHex, "hex", false, "print full record bodies as hex")
	rootCmd.AddCommand(dumpCmd)
}

func dump(path string, layout otlpmmap.Layout) error {
	if dumpSection < 0 || dumpSection >= len(layout.Sections) ||
		layout.Sections[dumpSection].Kind != otlpmmap.SectionRing {
		return fmt.Errorf("section %d is not a ring in the layout", dumpSection)
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	r, err := otlpmmap.OpenReader(path, layout)
	if err != nil {
		return err
	}
	defer r.Close()
	log.Debugw("attached", "path", path, "epoch", r.Epoch())

	printed := 0
	limitReached := func() bool { return dumpMax > 0 && printed >= dumpMax }
	print := func(idx int64, body []byte) error {
		if limitReached() {
			return errDumpDone
		}
		if dumpHex {
			fmt.Printf("%d\t%d\t%s\n", idx, len(body), hex.EncodeToString(body))
		} else {
			fmt.Printf("%d\t%d\t%q\n", idx, len(body), preview(body, 48))
		}
		printed++
		return nil
	}

	for {
		_, err := r.Ring(dumpSection).Consume(print)
		switch {
		case errors.Is(err, errDumpDone):
			return nil
		case errors.Is(err, otlpmmap.ErrVersionMismatch):
			log.Infow("epoch changed, re-attaching")
			if err := r.Reset(); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		}
		if !dumpFollow || limitReached() {
			return nil
		}
		ws := &otlpmmap.BackoffWait{MaxElapsed: time.Hour}
		body, idx, err := r.Ring(dumpSection).Next(ws)
		if errors.Is(err, otlpmmap.ErrVersionMismatch) {
			log.Infow("epoch changed, re-attaching")
			if err := r.Reset(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := print(idx, body); err != nil {
			return nil
		}
		r.Ring(dumpSection).Advance(idx)
	}
}

var errDumpDone = errors.New("dump limit reached")

func preview(body []byte, n int) []byte {
	if len(body) <= n {
		return body
	}
	return body[:n]
}
