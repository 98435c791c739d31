package otlpmmap

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// On-disk geometry constants. All little-endian, all header fields 8-byte.
const (
	// fileHeaderSize is the size of the top-level file header: epoch,
	// one absolute offset per section, writer start time, zero padding.
	fileHeaderSize = 64

	// ringHeaderSize is the size of a ring section header:
	// num_slots, slot_size, reader_index, writer_index.
	ringHeaderSize = 32

	// dictHeaderSize is the size of a dictionary section header:
	// end, num_entries, zero padding.
	dictHeaderSize = 64

	// MaxSections is the most sections a single file can carry. The 64-byte
	// file header holds the epoch, five section offsets, the writer start
	// time and one reserved word.
	MaxSections = 5
)

// File header field offsets.
const (
	offEpoch = 0 // u64, zero means uninitialized
)

// sectionOffsetField returns the file-header offset of section k's pointer.
func sectionOffsetField(k int) uint64 {
	return uint64(8 * (1 + k))
}

// startTimeField returns the file-header offset of the writer start-time
// field, which sits immediately after the last section pointer.
func startTimeField(numSections int) uint64 {
	return uint64(8 * (1 + numSections))
}

// Ring section header field offsets, relative to the section start.
const (
	ringOffNumSlots    = 0  // u64, power of two, immutable after init
	ringOffSlotSize    = 8  // u64, bytes, immutable after init
	ringOffReaderIndex = 16 // i64, -1 initial, release-stored by the reader
	ringOffWriterIndex = 24 // i64, -1 initial, CAS'd by writers
)

// Dictionary section header field offsets, relative to the section start.
const (
	dictOffEnd        = 0 // u64, absolute file offset of the next free byte
	dictOffNumEntries = 8 // u64, advisory
)

// SectionKind discriminates the two section types.
type SectionKind int

const (
	// SectionRing is a bounded FIFO of fixed-size slots.
	SectionRing SectionKind = iota
	// SectionDict is an unbounded append log of variable-size entries
	// referenced by byte offset. A dictionary must be the last section of
	// its file: growth extends the file tail.
	SectionDict
)

func (k SectionKind) String() string {
	switch k {
	case SectionRing:
		return "ring"
	case SectionDict:
		return "dictionary"
	}
	return fmt.Sprintf("SectionKind(%d)", int(k))
}

// Framing declares how a ring's slots carry their bodies.
type Framing int

const (
	// FramingVarint prefixes each body with a LEB128 length; bodies up to
	// slot_size minus the prefix are accepted.
	FramingVarint Framing = iota
	// FramingFixed carries raw bodies of exactly slot_size bytes.
	FramingFixed
)

func (f Framing) String() string {
	switch f {
	case FramingVarint:
		return "varint"
	case FramingFixed:
		return "fixed"
	}
	return fmt.Sprintf("Framing(%d)", int(f))
}

// RingConfig declares a ring buffer section's immutable geometry.
type RingConfig struct {
	// Slots is the slot count. Must be a power of two.
	Slots uint64
	// SlotSize is the fixed size of each slot in bytes.
	SlotSize uint64
	// Framing declares fixed raw bodies or varint-prefixed variable bodies.
	// Framing is a convention between writer and reader; it is not stored
	// in the file.
	Framing Framing
}

// DictConfig declares a dictionary section's initial geometry.
type DictConfig struct {
	// Capacity is the initial body capacity in bytes (excluding the
	// 64-byte section header). The dictionary grows past it on demand.
	Capacity uint64
	// MaxSize, when nonzero, bounds the total file size the dictionary may
	// grow to: an append whose entry would end past it fails with
	// ErrCapacityExceeded. The file is extended in whole pages, so when
	// MaxSize is not a page multiple the file may end up to one page past it.
	MaxSize uint64
}

// Section is one entry of a file's layout.
type Section struct {
	Kind SectionKind
	Ring RingConfig
	Dict DictConfig
}

// size returns the section's on-disk size at initialization time.
func (s Section) size() uint64 {
	switch s.Kind {
	case SectionRing:
		return ringHeaderSize + 4*s.Ring.Slots + s.Ring.Slots*s.Ring.SlotSize
	case SectionDict:
		return dictHeaderSize + s.Dict.Capacity
	}
	return 0
}

// Layout describes the sections of one transport file, in file order. The
// layout is the contract between the producer and the collector: both sides
// must be constructed from the same descriptor.
type Layout struct {
	Sections []Section
}

// Validate checks the layout against the on-disk format's constraints.
func (l Layout) Validate() error {
	if len(l.Sections) == 0 {
		return errf(CodeLayoutMismatch, "layout has no sections")
	}
	if len(l.Sections) > MaxSections {
		return errf(CodeLayoutMismatch, "layout has %d sections, max is %d", len(l.Sections), MaxSections)
	}
	for i, s := range l.Sections {
		switch s.Kind {
		case SectionRing:
			n := s.Ring.Slots
			if n == 0 || n&(n-1) != 0 {
				return errf(CodeLayoutMismatch, "section %d: num_slots %d is not a power of two", i, n)
			}
			if s.Ring.SlotSize == 0 {
				return errf(CodeLayoutMismatch, "section %d: zero slot_size", i)
			}
		case SectionDict:
			if i != len(l.Sections)-1 {
				return errf(CodeLayoutMismatch, "section %d: dictionary must be the last section", i)
			}
			if s.Dict.MaxSize != 0 && s.Dict.MaxSize < l.fileSize() {
				return errf(CodeLayoutMismatch, "section %d: max_size smaller than initial file size", i)
			}
		default:
			return errf(CodeLayoutMismatch, "section %d: unknown kind %d", i, int(s.Kind))
		}
	}
	return nil
}

// sectionOffset returns the absolute file offset of section i's header.
// Sections are laid out back to back after the file header, each start
// rounded up to 8 bytes.
func (l Layout) sectionOffset(i int) uint64 {
	off := uint64(fileHeaderSize)
	for k := 0; k < i; k++ {
		off += l.Sections[k].size()
		off = (off + 7) &^ 7
	}
	return off
}

// fileSize returns the total initial file size.
func (l Layout) fileSize() uint64 {
	last := len(l.Sections) - 1
	return l.sectionOffset(last) + l.Sections[last].size()
}

// yamlLayout is the YAML descriptor schema. Byte sizes accept human units
// ("4KB", "1MB") via datasize.
type yamlLayout struct {
	Sections []yamlSection `yaml:"sections"`
}

type yamlSection struct {
	Kind     string            `yaml:"kind"`
	Slots    uint64            `yaml:"slots"`
	SlotSize datasize.ByteSize `yaml:"slot_size"`
	Framing  string            `yaml:"framing"`
	Capacity datasize.ByteSize `yaml:"capacity"`
	MaxSize  datasize.ByteSize `yaml:"max_size"`
}

// LoadLayout reads a YAML layout descriptor from path.
//
// Example:
//
//	sections:
//	  - kind: ring
//	    slots: 4096
//	    slot_size: 4KB
//	    framing: varint
//	  - kind: dictionary
//	    capacity: 1MB
func LoadLayout(path string) (Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, wrapErr(CodeIO, "read layout descriptor", err)
	}
	return ParseLayout(raw)
}

// ParseLayout decodes a YAML layout descriptor.
func ParseLayout(raw []byte) (Layout, error) {
	var yl yamlLayout
	if err := yaml.Unmarshal(raw, &yl); err != nil {
		return Layout{}, wrapErr(CodeLayoutMismatch, "parse layout descriptor", err)
	}
	var l Layout
	for i, ys := range yl.Sections {
		switch ys.Kind {
		case "ring":
			framing := FramingVarint
			switch ys.Framing {
			case "", "varint":
			case "fixed":
				framing = FramingFixed
			default:
				return Layout{}, errf(CodeLayoutMismatch, "section %d: unknown framing %q", i, ys.Framing)
			}
			l.Sections = append(l.Sections, Section{Kind: SectionRing, Ring: RingConfig{
				Slots:    ys.Slots,
				SlotSize: ys.SlotSize.Bytes(),
				Framing:  framing,
			}})
		case "dictionary":
			l.Sections = append(l.Sections, Section{Kind: SectionDict, Dict: DictConfig{
				Capacity: ys.Capacity.Bytes(),
				MaxSize:  ys.MaxSize.Bytes(),
			}})
		default:
			return Layout{}, errf(CodeLayoutMismatch, "section %d: unknown kind %q", i, ys.Kind)
		}
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}
