// Package cliptest provides an in-memory clipboard backend for tests.
package cliptest

import (
	"sync"

	"go.klb.dev/clip2web/internal/clip"
)

// Memory is a clip.Backend holding one clipboard payload in memory.
// Setting content replaces everything, as copying does on a real clipboard.
type Memory struct {
	mu       sync.Mutex
	data     map[clip.Format][]byte
	order    []clip.Format
	readErr  error
	writeErr error
	writes   []string
	reads    int
	onWrite  func()
	watchCh  chan struct{}
}

var _ clip.Backend = (*Memory)(nil)

// NewMemory returns an empty clipboard.
func NewMemory() *Memory {
	return &Memory{
		data:    make(map[clip.Format][]byte),
		watchCh: make(chan struct{}, 1),
	}
}

// SetImage replaces the clipboard with an image in format f.
func (m *Memory) SetImage(f clip.Format, data []byte) {
	m.set(map[clip.Format][]byte{f: data}, []clip.Format{f})
}

// SetText replaces the clipboard with text.
func (m *Memory) SetText(text string) {
	m.set(map[clip.Format][]byte{clip.FormatText: []byte(text)}, []clip.Format{clip.FormatText})
}

// Offer replaces the clipboard with formats that have no readable payload,
// like a format list advertised by an application that then fails to render.
func (m *Memory) Offer(formats ...clip.Format) {
	m.set(map[clip.Format][]byte{}, formats)
}

func (m *Memory) set(data map[clip.Format][]byte, order []clip.Format) {
	m.mu.Lock()
	m.data = data
	m.order = order
	m.mu.Unlock()
	select {
	case m.watchCh <- struct{}{}:
	default:
	}
}

// Text returns the clipboard text, if any.
func (m *Memory) Text() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[clip.FormatText]
	return string(b), ok
}

// Image returns the clipboard image, if any.
func (m *Memory) Image() (clip.Format, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.order {
		if b, ok := m.data[f]; ok && f.IsImage() {
			return f, b, true
		}
	}
	return "", nil, false
}

// FailNextRead makes the next Formats or ReadImage call fail with err.
func (m *Memory) FailNextRead(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// FailNextWrite makes the next WriteText call fail with err.
func (m *Memory) FailNextWrite(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// OnWrite registers fn to run after every successful WriteText, outside the
// backend lock. Tests use it to feed the resulting change notification back
// into the chain.
func (m *Memory) OnWrite(fn func()) {
	m.mu.Lock()
	m.onWrite = fn
	m.mu.Unlock()
}

// Writes returns every text written through WriteText.
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// Reads returns the number of Formats and ReadImage calls.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Formats() ([]clip.Format, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := m.takeReadErr(); err != nil {
		return nil, err
	}
	return append([]clip.Format(nil), m.order...), nil
}

func (m *Memory) ReadImage() (clip.Format, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := m.takeReadErr(); err != nil {
		return "", nil, err
	}
	for _, f := range m.order {
		if !f.IsImage() {
			continue
		}
		if b, ok := m.data[f]; ok {
			return f, append([]byte(nil), b...), nil
		}
	}
	return "", nil, clip.ErrFormatUnavailable
}

func (m *Memory) WriteText(text string) error {
	m.mu.Lock()
	if err := m.writeErr; err != nil {
		m.writeErr = nil
		m.mu.Unlock()
		return err
	}
	m.writes = append(m.writes, text)
	fn := m.onWrite
	m.mu.Unlock()

	m.SetText(text)
	if fn != nil {
		fn()
	}
	return nil
}

func (m *Memory) Watch() <-chan struct{} { return m.watchCh }
func (m *Memory) Close()                 {}

func (m *Memory) takeReadErr() error {
	err := m.readErr
	m.readErr = nil
	return err
}
