package otlpmmap

import (
	"errors"
	"os"
	"path/filepath"
)

// The process-external surface is a directory of transport files, one per
// signal class. File names and section contents are a convention between
// producer and collector; the section layouts inside each file are the
// bit-exact contract any independent reader can decode.
const (
	// ResourceFile interns resource entries referenced by record bodies.
	ResourceFile = "resource.otlp"
	// ScopeFile interns instrumentation scope entries.
	ScopeFile = "scope.otlp"
	// SpansFile carries finished spans.
	SpansFile = "spans.otlp"
	// LogsFile carries log and event records.
	LogsFile = "logs.otlp"
	// MetricsFile carries metric measurements. Pending a dedicated
	// timeseries format it is an ordinary ring with the same framing as
	// spans and logs.
	MetricsFile = "metrics.otlp"
)

// DefaultDictLayout is the layout of the two dictionary files.
func DefaultDictLayout() Layout {
	return Layout{Sections: []Section{{
		Kind: SectionDict,
		Dict: DictConfig{Capacity: 1 << 20},
	}}}
}

// DefaultRingLayout is the layout of a signal ring file with the given slot
// size. Bodies are opaque encoded records, varint-framed.
func DefaultRingLayout(slotSize uint64) Layout {
	return Layout{Sections: []Section{{
		Kind: SectionRing,
		Ring: RingConfig{Slots: 4096, SlotSize: slotSize, Framing: FramingVarint},
	}}}
}

// Default slot sizes per signal class.
const (
	DefaultSpanSlotSize   = 2048
	DefaultLogSlotSize    = 2048
	DefaultMetricSlotSize = 512
)

// DirectoryWriter is the producer side of a telemetry directory: two
// dictionaries for interned data and one ring per signal class.
type DirectoryWriter struct {
	Resource *Dict
	Scope    *Dict
	Spans    *RingWriter
	Logs     *RingWriter
	Metrics  *RingWriter

	writers []*Writer
}

// OpenDirectoryWriter creates dir if needed and opens the five standard
// transport files in it. Options apply to every file.
func OpenDirectoryWriter(dir string, opts ...WriterOption) (*DirectoryWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, wrapErr(CodeIO, "create telemetry directory", err)
	}

	d := &DirectoryWriter{}
	open := func(name string, layout Layout) (*Writer, error) {
		w, err := OpenWriter(filepath.Join(dir, name), layout, opts...)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.writers = append(d.writers, w)
		return w, nil
	}

	w, err := open(ResourceFile, DefaultDictLayout())
	if err != nil {
		return nil, err
	}
	d.Resource = w.Dict(0)

	if w, err = open(ScopeFile, DefaultDictLayout()); err != nil {
		return nil, err
	}
	d.Scope = w.Dict(0)

	if w, err = open(SpansFile, DefaultRingLayout(DefaultSpanSlotSize)); err != nil {
		return nil, err
	}
	d.Spans = w.Ring(0)

	if w, err = open(LogsFile, DefaultRingLayout(DefaultLogSlotSize)); err != nil {
		return nil, err
	}
	d.Logs = w.Ring(0)

	if w, err = open(MetricsFile, DefaultRingLayout(DefaultMetricSlotSize)); err != nil {
		return nil, err
	}
	d.Metrics = w.Ring(0)

	return d, nil
}

// Close closes every file of the directory.
func (d *DirectoryWriter) Close() error {
	var errs []error
	for _, w := range d.writers {
		errs = append(errs, w.Close())
	}
	d.writers = nil
	return errors.Join(errs...)
}

// DirectoryReader is the collector side of a telemetry directory.
type DirectoryReader struct {
	Resource *DictReader
	Scope    *DictReader
	Spans    *RingReader
	Logs     *RingReader
	Metrics  *RingReader

	readers []*Reader
}

// OpenDirectoryReader attaches to the five standard transport files in dir.
func OpenDirectoryReader(dir string) (*DirectoryReader, error) {
	d := &DirectoryReader{}
	open := func(name string, layout Layout) (*Reader, error) {
		r, err := OpenReader(filepath.Join(dir, name), layout)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.readers = append(d.readers, r)
		return r, nil
	}

	r, err := open(ResourceFile, DefaultDictLayout())
	if err != nil {
		return nil, err
	}
	d.Resource = r.Dict(0)

	if r, err = open(ScopeFile, DefaultDictLayout()); err != nil {
		return nil, err
	}
	d.Scope = r.Dict(0)

	if r, err = open(SpansFile, DefaultRingLayout(DefaultSpanSlotSize)); err != nil {
		return nil, err
	}
	d.Spans = r.Ring(0)

	if r, err = open(LogsFile, DefaultRingLayout(DefaultLogSlotSize)); err != nil {
		return nil, err
	}
	d.Logs = r.Ring(0)

	if r, err = open(MetricsFile, DefaultRingLayout(DefaultMetricSlotSize)); err != nil {
		return nil, err
	}
	d.Metrics = r.Ring(0)

	return d, nil
}

// Reset re-attaches every file after an epoch change and rebinds the
// section handles. Handles obtained before the Reset are invalid.
func (d *DirectoryReader) Reset() error {
	var errs []error
	for _, r := range d.readers {
		errs = append(errs, r.Reset())
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	d.Resource = d.readers[0].Dict(0)
	d.Scope = d.readers[1].Dict(0)
	d.Spans = d.readers[2].Ring(0)
	d.Logs = d.readers[3].Ring(0)
	d.Metrics = d.readers[4].Ring(0)
	return nil
}

// Close closes every file of the directory.
func (d *DirectoryReader) Close() error {
	var errs []error
	for _, r := range d.readers {
		errs = append(errs, r.Close())
	}
	d.readers = nil
	return errors.Join(errs...)
}
