// Package otlpmmap is a local, inter-process transport for telemetry built
// on memory-mapped files. A producer process writes spans, log records and
// metric measurements into lock-free ring buffers and append-only
// dictionaries laid out in a shared file; an out-of-band collector process
// maps the same file and drains them. Because every record lands directly in
// file-backed pages, a producer crash (including an OOM kill) leaves the most
// recent records recoverable by any reader that opens the file afterwards.
//
// Key features:
//   - Multi-producer / single-consumer ring buffers with a per-slot
//     generation availability array
//   - No kernel synchronization: coordination is atomics on mapped memory
//   - Append-only dictionaries handing out stable 64-bit byte offsets, used
//     to intern resources, scopes and other repeated data
//   - A 64-byte file header carrying a version epoch; any epoch change tells
//     readers to discard all cached state and re-attach
//   - Allocation-free producer hot path
//
// Basic usage:
//
//	layout := otlpmmap.Layout{Sections: []otlpmmap.Section{
//	    {Kind: otlpmmap.SectionRing, Ring: otlpmmap.RingConfig{
//	        Slots: 1024, SlotSize: 2048, Framing: otlpmmap.FramingVarint,
//	    }},
//	}}
//
//	w, err := otlpmmap.OpenWriter("/run/telemetry/spans.otlp", layout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Ring(0).TryAppend(encodedSpan); err != nil {
//	    // otlpmmap.ErrRingFull: the consumer is behind; drop or retry
//	}
//
// And on the collector side:
//
//	r, err := otlpmmap.OpenReader("/run/telemetry/spans.otlp", layout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for {
//	    body, idx, ok, err := r.Ring(0).TryNext()
//	    if err != nil || !ok {
//	        break
//	    }
//	    process(body)
//	    r.Ring(0).Advance(idx)
//	}
package otlpmmap
