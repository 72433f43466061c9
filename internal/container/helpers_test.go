package container

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// eventLog records hook invocations across goroutines.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *eventLog) index(entry string) int {
	for i, e := range l.snapshot() {
		if e == entry {
			return i
		}
	}
	return -1
}

func (l *eventLog) has(entry string) bool {
	return l.index(entry) >= 0
}

// probe implements every lifecycle hook and records each call.
type probe struct {
	name  string
	log   *eventLog
	fail  map[string]error
	hooks map[string]func()
}

func newProbe(name string, log *eventLog) *probe {
	return &probe{name: name, log: log, fail: map[string]error{}, hooks: map[string]func(){}}
}

func (p *probe) failing(phase string) *probe {
	p.fail[phase] = errors.New(p.name + " " + phase + " failed")
	return p
}

func (p *probe) on(phase string, fn func()) *probe {
	p.hooks[phase] = fn
	return p
}

func (p *probe) call(phase string) error {
	p.log.add(p.name + ":" + phase)
	if fn := p.hooks[phase]; fn != nil {
		fn()
	}
	return p.fail[phase]
}

func (p *probe) PreInit(context.Context) error     { return p.call("PRE_INIT") }
func (p *probe) PostInit(context.Context) error    { return p.call("POST_INIT") }
func (p *probe) PreDestroy(context.Context) error  { return p.call("PRE_DESTROY") }
func (p *probe) PostDestroy(context.Context) error { return p.call("POST_DESTROY") }
func (p *probe) Close() error                      { return p.call("CLOSE") }

// Distinct component types, since keys are types.
type (
	compA struct{ *probe }
	compB struct{ *probe }
	compC struct{ *probe }
	compD struct{ *probe }
	compE struct{ *probe }
	compF struct{ *probe }
	compG struct{ *probe }
)

var (
	keyA = KeyOf[*compA]()
	keyB = KeyOf[*compB]()
	keyC = KeyOf[*compC]()
	keyD = KeyOf[*compD]()
	keyE = KeyOf[*compE]()
	keyF = KeyOf[*compF]()
	keyG = KeyOf[*compG]()
)

// testModule is a Module whose boundary equals its name.
type testModule string

func (m testModule) Name() string     { return string(m) }
func (m testModule) Boundary() string { return string(m) }

// boundaryScanner serves fixed descriptors per boundary.
type boundaryScanner struct {
	mu    sync.Mutex
	descs map[string][]Descriptor
	errs  map[string]error
}

func newBoundaryScanner() *boundaryScanner {
	return &boundaryScanner{descs: map[string][]Descriptor{}, errs: map[string]error{}}
}

func (s *boundaryScanner) set(boundary string, descs ...Descriptor) {
	s.mu.Lock()
	s.descs[boundary] = descs
	s.mu.Unlock()
}

func (s *boundaryScanner) Scan(_ context.Context, boundary string) *ScanFuture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CompletedScan(ScanResult{Descriptors: s.descs[boundary], Err: s.errs[boundary]})
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) all() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

// recordingController logs Apply/Release calls.
type recordingController struct {
	name     string
	log      *eventLog
	failFor  Key
	released []Key
	mu       sync.Mutex
}

func (c *recordingController) Name() string { return c.name }

func (c *recordingController) Apply(_ context.Context, rec *Record) error {
	c.log.add(c.name + ":APPLY:" + rec.Key().String())
	if rec.Key() == c.failFor {
		return errors.New("refused")
	}
	return nil
}

func (c *recordingController) Release(_ context.Context, rec *Record) error {
	c.log.add(c.name + ":RELEASE:" + rec.Key().String())
	c.mu.Lock()
	c.released = append(c.released, rec.Key())
	c.mu.Unlock()
	return nil
}

func newTestContainer(t *testing.T, opts ...Option) *Container {
	t.Helper()
	return New(append([]Option{WithExecutor(InlineExecutor{})}, opts...)...)
}

func mustRegister(t *testing.T, c *Container, desc Descriptor) *Record {
	t.Helper()
	rec, err := c.RegisterObject(context.Background(), desc)
	if err != nil {
		t.Fatalf("register %s: %v", desc.Key, err)
	}
	if rec == nil {
		t.Fatalf("register %s: component was skipped", desc.Key)
	}
	return rec
}
