package agent

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.klb.dev/clip2web/internal/chain"
	"go.klb.dev/clip2web/internal/chain/chaintest"
	"go.klb.dev/clip2web/internal/clip"
	"go.klb.dev/clip2web/internal/clip/cliptest"
	"go.klb.dev/clip2web/internal/message"
	"go.klb.dev/clip2web/internal/notify"
	"go.klb.dev/clip2web/internal/sink"
)

type simEndpoint struct {
	chain.System
	self chain.Handle
}

func (e simEndpoint) Self() chain.Handle { return e.self }

// peer is another application in the chain that only counts changes.
type peer struct {
	self    chain.Handle
	h       *chain.Handler
	changes int
}

func addPeer(t *testing.T, sim *chaintest.Sim) *peer {
	t.Helper()
	p := &peer{self: sim.NewHandle()}
	p.h = chain.New(sim.For(p.self), p.self, func() { p.changes++ })
	sim.Attach(p.self, p.h)
	if err := p.h.Register(); err != nil {
		t.Fatal(err)
	}
	return p
}

type fixture struct {
	sim   *chaintest.Sim
	mem   *cliptest.Memory
	dir   string
	agent *Agent
	self  chain.Handle
	sess  *chain.Handler
}

func newFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	store, err := sink.NewFileStore(sink.Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{sim: chaintest.New(), mem: cliptest.NewMemory(), dir: dir}
	f.agent = New(f.mem, store, Options{Version: "test"})
	// Writing the path is itself a clipboard change the OS announces.
	f.mem.OnWrite(f.sim.Copy)
	return f
}

func (f *fixture) join(t *testing.T) {
	t.Helper()
	f.self = f.sim.NewHandle()
	f.sess = f.agent.Bind(simEndpoint{System: f.sim.For(f.self), self: f.self}).(*chain.Handler)
	f.sim.Attach(f.self, f.sess)
	if err := f.sess.Register(); err != nil {
		t.Fatal(err)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.NRGBA{B: 0xff, A: 0xff})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func saved(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out
}

func TestImageCopyBecomesPath(t *testing.T) {
	f := newFixture(t, "")
	downstream := addPeer(t, f.sim)
	f.join(t)

	f.mem.SetImage(clip.FormatPNG, pngBytes(t))
	f.sim.Copy()

	files := saved(t, f.dir)
	if len(files) != 1 {
		t.Fatalf("saved %v, want one file", files)
	}
	if text, ok := f.mem.Text(); !ok || text != files[0] {
		t.Fatalf("clipboard = %q, want %q", text, files[0])
	}
	// The image copy and the path write both reached the other application.
	if downstream.changes != 2 {
		t.Fatalf("downstream saw %d changes, want 2", downstream.changes)
	}
	if got := f.mem.Writes(); len(got) != 1 {
		t.Fatalf("clipboard writes = %v, want exactly one", got)
	}
	last, ok := f.agent.Last()
	if !ok || last.Path != files[0] {
		t.Fatalf("last = %+v, %v", last, ok)
	}
}

func TestTextClipboardIsIgnored(t *testing.T) {
	f := newFixture(t, "")
	f.join(t)

	f.mem.SetText("/some/earlier/clip.png")
	for i := 0; i < 3; i++ {
		f.sim.Copy()
	}
	if files := saved(t, f.dir); len(files) != 0 {
		t.Fatalf("text produced files: %v", files)
	}
	if len(f.mem.Writes()) != 0 {
		t.Fatal("text clipboard rewritten")
	}
	if st := f.sess.Status(); st.Changes != 3 {
		t.Fatalf("changes = %d, want 3", st.Changes)
	}
}

func TestPersistFailureIsolated(t *testing.T) {
	blocked := filepath.Join(t.TempDir(), "scratch")
	if err := os.WriteFile(blocked, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, blocked)
	downstream := addPeer(t, f.sim)
	f.join(t)

	img := pngBytes(t)
	f.mem.SetImage(clip.FormatPNG, img)
	f.sim.Copy()

	if _, data, ok := f.mem.Image(); !ok || !bytes.Equal(data, img) {
		t.Fatal("image replaced after failed save")
	}
	if downstream.changes != 1 {
		t.Fatalf("downstream saw %d changes, want 1", downstream.changes)
	}
	if f.sess.State() != chain.Active {
		t.Fatalf("state = %v after failure", f.sess.State())
	}

	// The next change succeeds once the directory is usable again.
	if err := os.Remove(blocked); err != nil {
		t.Fatal(err)
	}
	f.sim.Copy()
	if files := saved(t, blocked); len(files) != 1 {
		t.Fatalf("after recovery saved %v", files)
	}

	st := f.agent.Status()
	if st.PersistenceFailures != 1 || st.Saved != 1 {
		t.Fatalf("status = %+v", st)
	}
	if st.LastFailure == nil || st.LastFailure.Kind != string(notify.PersistenceFailed) {
		t.Fatalf("last failure = %+v", st.LastFailure)
	}
}

func TestExtractionFailureStillForwards(t *testing.T) {
	f := newFixture(t, "")
	downstream := addPeer(t, f.sim)
	f.join(t)

	f.mem.SetImage(clip.FormatPNG, pngBytes(t))
	f.mem.FailNextRead(clip.ErrAccessDenied)
	f.sim.Copy()

	if downstream.changes != 1 {
		t.Fatalf("downstream saw %d changes, want 1", downstream.changes)
	}
	if files := saved(t, f.dir); len(files) != 0 {
		t.Fatalf("saved %v after failed read", files)
	}
	if n := f.agent.Status().ExtractionFailures; n != 1 {
		t.Fatalf("extraction failures = %d", n)
	}
}

func TestRegistrationAnnouncementNotCaptured(t *testing.T) {
	f := newFixture(t, "")
	f.mem.SetImage(clip.FormatPNG, pngBytes(t))
	f.join(t)

	if files := saved(t, f.dir); len(files) != 0 {
		t.Fatalf("image already on the clipboard at startup was saved: %v", files)
	}
}

func TestShutdownLeavesChain(t *testing.T) {
	f := newFixture(t, "")
	downstream := addPeer(t, f.sim)
	f.join(t)
	upstream := addPeer(t, f.sim)

	if err := f.sess.Unregister(); err != nil {
		t.Fatal(err)
	}
	f.sim.Kill(f.self)

	if got, want := f.sim.Chain(), []chain.Handle{upstream.self, downstream.self}; !slices.Equal(got, want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	f.sim.Copy()
	if f.sim.Dangling() != 0 {
		t.Fatalf("%d messages sent to the departed agent", f.sim.Dangling())
	}
	if downstream.changes != 1 {
		t.Fatalf("downstream saw %d changes after splice", downstream.changes)
	}
	if st := f.agent.Status(); st.Chain.State != chain.Detached.String() {
		t.Fatalf("chain state = %q", st.Chain.State)
	}
}

func TestSnap(t *testing.T) {
	f := newFixture(t, "")
	if _, ok, err := f.agent.Snap(); ok || err != nil {
		t.Fatalf("empty clipboard: ok=%v err=%v", ok, err)
	}
	f.mem.SetImage(clip.FormatPNG, pngBytes(t))
	ref, ok, err := f.agent.Snap()
	if !ok || err != nil {
		t.Fatalf("Snap: ok=%v err=%v", ok, err)
	}
	if text, _ := f.mem.Text(); text != ref.Path {
		t.Fatalf("clipboard = %q, want %q", text, ref.Path)
	}
}

func TestHandle(t *testing.T) {
	f := newFixture(t, "")
	f.join(t)

	resp := f.agent.Handle(&message.Message{Type: message.TypeLast})
	if resp.Type != message.TypeLastResponse || resp.Last != nil {
		t.Fatalf("last before any save = %+v", resp)
	}

	f.mem.SetImage(clip.FormatPNG, pngBytes(t))
	f.sim.Copy()

	resp = f.agent.Handle(&message.Message{Type: message.TypeStatus})
	if resp.Type != message.TypeStatusResponse || resp.Status == nil {
		t.Fatalf("status resp = %+v", resp)
	}
	st := resp.Status
	if st.Version != "test" || st.Backend != "memory" || st.Dir != f.dir || st.Chain.State != "active" {
		t.Fatalf("status = %+v", st)
	}
	if st.Saved != 1 || st.Last == nil {
		t.Fatalf("saved = %d, last = %+v", st.Saved, st.Last)
	}

	if resp := f.agent.Handle(&message.Message{Type: "COPY"}); resp.Type != message.TypeError {
		t.Fatalf("unsupported request answered with %+v", resp)
	}
}

func TestHandleSnap(t *testing.T) {
	f := newFixture(t, "")
	f.join(t)

	if resp := f.agent.Handle(&message.Message{Type: message.TypeSnap}); resp.Type != message.TypeError {
		t.Fatalf("snap of empty clipboard = %+v", resp)
	}

	f.mem.SetImage(clip.FormatPNG, pngBytes(t))
	resp := f.agent.Handle(&message.Message{Type: message.TypeSnap})
	if resp.Type != message.TypeSnapResponse || resp.Path == "" {
		t.Fatalf("snap resp = %+v", resp)
	}
	if text, _ := f.mem.Text(); text != resp.Path {
		t.Fatalf("clipboard = %q, want %q", text, resp.Path)
	}
	// The path write re-enters the chain while the snap holds the pipeline.
	if files := saved(t, f.dir); len(files) != 1 {
		t.Fatalf("saved %v, want one file", files)
	}
}

func TestSnapFailedPathWriteReported(t *testing.T) {
	f := newFixture(t, "")
	f.mem.SetImage(clip.FormatPNG, pngBytes(t))
	f.mem.FailNextWrite(clip.ErrAccessDenied)

	ref, ok, err := f.agent.Snap()
	if !ok || err == nil || ref.Path == "" {
		t.Fatalf("Snap = %+v, %v, %v", ref, ok, err)
	}
	st := f.agent.Status()
	if st.PublishFailures != 1 || st.Saved != 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestCaptureLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := newFixture(t, "")
	f.join(t)
	f.mem.SetImage(clip.FormatPNG, pngBytes(t))
	f.sim.Copy()

	if n := strings.Count(buf.String(), "clipboard image captured"); n != 1 {
		t.Fatalf("capture logged %d times:\n%s", n, buf.String())
	}
}
