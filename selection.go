package pulsar

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// Selection readback states.
const (
	selIdle = iota
	selRequested
	selCopied
	selMapping
	selMapped
)

// selectionReader copies one particle record into a mappable staging
// buffer and decodes it once the map completes, a frame or two after
// the request. Only one request is in flight at a time; a new Select
// while busy replaces the queued index but never interrupts a mapping.
type selectionReader struct {
	device      *wgpu.Device
	staging     *wgpu.Buffer
	stagingSize uint64

	mu       sync.Mutex
	state    int
	index    uint32
	layout   *Layout
	callback func(index uint32, r *Record, err error)
}

func newSelectionReader(device *wgpu.Device) *selectionReader {
	return &selectionReader{device: device}
}

// request queues a readback of particle index; fn runs on the frame
// loop goroutine once the record is decoded.
func (sr *selectionReader) request(index uint32, fn func(index uint32, r *Record, err error)) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.state == selMapping || sr.state == selMapped {
		sr.index = index
		sr.callback = fn
		return
	}
	sr.state = selRequested
	sr.index = index
	sr.callback = fn
}

// encode records the record copy into this frame's encoder. src is the
// buffer the frame renders from, so the copy sees the newest state.
func (sr *selectionReader) encode(encoder *wgpu.CommandEncoder, src *wgpu.Buffer, l *Layout) {
	if sr == nil {
		return
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.state != selRequested {
		return
	}

	// Copy sizes must be 4-byte aligned; strides always are.
	size := uint64(l.Stride)
	if sr.staging == nil || sr.stagingSize < size {
		if sr.staging != nil {
			sr.staging.Release()
		}
		var err error
		sr.staging, err = sr.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "selection staging",
			Size:  size,
			Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
		})
		if err != nil {
			sr.failLocked(err)
			return
		}
		sr.stagingSize = size
	}

	encoder.CopyBufferToBuffer(src, uint64(sr.index)*size, sr.staging, 0, size)
	sr.layout = l
	sr.state = selCopied
}

// resolve advances the map state machine; call after submit.
func (sr *selectionReader) resolve(device *wgpu.Device) {
	if sr == nil {
		return
	}
	sr.mu.Lock()
	state := sr.state
	sr.mu.Unlock()

	switch state {
	case selCopied:
		sr.mu.Lock()
		sr.state = selMapping
		size := uint64(sr.layout.Stride)
		sr.mu.Unlock()
		sr.staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
			sr.mu.Lock()
			defer sr.mu.Unlock()
			if status == wgpu.BufferMapAsyncStatusSuccess {
				sr.state = selMapped
			} else {
				sr.failLocked(fmt.Errorf("selection map failed: %v", status))
			}
		})
	case selMapped:
		sr.mu.Lock()
		data := sr.staging.GetMappedRange(0, uint(sr.layout.Stride))
		record, err := sr.layout.Decode(data)
		sr.staging.Unmap()
		fn := sr.callback
		index := sr.index
		sr.state = selIdle
		sr.callback = nil
		sr.mu.Unlock()
		if fn != nil {
			fn(index, record, err)
		}
	}
}

func (sr *selectionReader) failLocked(err error) {
	fn := sr.callback
	index := sr.index
	sr.state = selIdle
	sr.callback = nil
	if fn != nil {
		fn(index, nil, err)
	}
}

func (sr *selectionReader) release() {
	if sr == nil {
		return
	}
	if sr.staging != nil {
		sr.staging.Release()
		sr.staging = nil
	}
}

// Select reads particle index back from the GPU. The callback runs on
// the frame loop once the record arrives, typically one or two frames
// later; it receives an error if the index is out of range or the map
// fails.
func (s *Sim) Select(index uint32, fn func(index uint32, r *Record, err error)) error {
	if s.selection == nil {
		return fmt.Errorf("selection requires a running simulation")
	}
	if index >= s.count {
		return fmt.Errorf("particle index %d out of range (count %d)", index, s.count)
	}
	s.selection.request(index, fn)
	return nil
}
