// Package hosttest provides in-memory stand-ins for the process runner and
// protected file store so host-mutating code can be tested without a host.
package hosttest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/BrianJOC/host-harden/utils/rootexec"
	"github.com/BrianJOC/host-harden/utils/rootfile"
)

// Response is the scripted outcome of a command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

type rule struct {
	prefix    string
	responses []Response
}

// Runner is a rootexec.Runner that answers from scripted responses. Commands
// without a matching rule succeed with no output.
type Runner struct {
	mu    sync.Mutex
	rules []*rule
	calls [][]string
	stdin []string
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// On scripts responses for commands whose space-joined argv starts with prefix
// (after any elevation tool). Responses are consumed in order; the last one repeats.
func (r *Runner) On(prefix string, responses ...Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(responses) == 0 {
		responses = []Response{{}}
	}
	r.rules = append(r.rules, &rule{prefix: prefix, responses: responses})
	return r
}

// Run implements rootexec.Runner.
func (r *Runner) Run(_ context.Context, cmd rootexec.Command) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, append([]string(nil), cmd.Argv...))
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		r.stdin = append(r.stdin, string(data))
	}

	resp := r.match(cmd.Argv)
	if resp.Err != nil {
		return -1, resp.Err
	}
	if cmd.Stdout != nil && resp.Stdout != "" {
		_, _ = io.WriteString(cmd.Stdout, resp.Stdout)
	}
	if cmd.Stderr != nil && resp.Stderr != "" {
		_, _ = io.WriteString(cmd.Stderr, resp.Stderr)
	}
	return resp.ExitCode, nil
}

func (r *Runner) match(argv []string) Response {
	joined := strings.Join(unelevated(argv), " ")
	for _, rl := range r.rules {
		if !strings.HasPrefix(joined, rl.prefix) {
			continue
		}
		resp := rl.responses[0]
		if len(rl.responses) > 1 {
			rl.responses = rl.responses[1:]
		}
		return resp
	}
	return Response{}
}

// Calls returns every argv run so far, including any elevation prefix.
func (r *Runner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Commands returns every argv joined with spaces, without the elevation prefix.
func (r *Runner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, strings.Join(unelevated(c), " "))
	}
	return out
}

// Stdin returns content piped to commands, in order.
func (r *Runner) Stdin() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stdin...)
}

// Reset forgets recorded calls but keeps the script.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.stdin = nil
}

func unelevated(argv []string) []string {
	if len(argv) > 1 && (argv[0] == "sudo" || argv[0] == "doas") {
		return argv[1:]
	}
	return argv
}

// Write records one protected write.
type Write struct {
	Path    string
	Content string
}

// Files is an in-memory protected file store.
type Files struct {
	mu      sync.Mutex
	files   map[string]string
	writes  []Write
	removed []string
	backups []string
	failOn  map[string]error
}

// NewFiles returns a store seeded with initial content.
func NewFiles(initial map[string]string) *Files {
	f := &Files{files: make(map[string]string), failOn: make(map[string]error)}
	for k, v := range initial {
		f.files[k] = v
	}
	return f
}

// FailWrite makes writes to path fail with err.
func (f *Files) FailWrite(path string, err error) *Files {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[path] = err
	return f
}

// Read implements the file store.
func (f *Files) Read(_ context.Context, path string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	return content, ok, nil
}

// Exists implements the file store.
func (f *Files) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok, nil
}

// Write implements the file store.
func (f *Files) Write(_ context.Context, path string, content []byte, _ ...rootfile.WriteOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[path]; ok {
		return err
	}
	f.files[path] = string(content)
	f.writes = append(f.writes, Write{Path: path, Content: string(content)})
	return nil
}

// Remove implements the file store.
func (f *Files) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	f.removed = append(f.removed, path)
	return nil
}

// Backup implements the file store.
func (f *Files) Backup(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	if !ok {
		return "", nil
	}
	dest := fmt.Sprintf("%s.bak.%d", path, len(f.backups))
	f.files[dest] = content
	f.backups = append(f.backups, dest)
	return dest, nil
}

// Content returns the stored content of path.
func (f *Files) Content(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	return content, ok
}

// Writes returns every write performed, in order.
func (f *Files) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Removed returns every removed path, in order.
func (f *Files) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// Mutations counts writes, removals and backups.
func (f *Files) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes) + len(f.removed) + len(f.backups)
}

// Paths lists stored paths in sorted order.
func (f *Files) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.files))
	for k := range f.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
