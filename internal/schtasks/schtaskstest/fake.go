// Package schtaskstest provides an in-memory stand-in for schtasks.exe.
//
// Fake implements schtasks.Runner. It understands the verbs and flags the
// scheduler package issues, keeps task definitions as exported XML in the
// shape the real tool produces, and records every invocation so tests can
// assert on what was (or was not) spawned.
package schtaskstest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/shortrun/shortrun/internal/schtasks"
	"github.com/shortrun/shortrun/internal/taskxml"
)

const (
	msgNotFound   = "ERROR: The system cannot find the file specified.\r\n"
	msgExists     = "ERROR: Cannot create a file when that file already exists.\r\n"
	msgBadXML     = "ERROR: The task XML is malformed.\r\n"
	msgBadSyntax  = "ERROR: Invalid syntax. Type \"SCHTASKS /?\" for usage.\r\n"
	defaultAuthor = `TESTHOST\tester`
	defaultDate   = "2024-01-01"
)

type task struct {
	name string
	doc  string
}

// Fake is a goroutine-safe fake scheduler.
type Fake struct {
	fs afero.Fs

	mu       sync.Mutex
	tasks    map[string]*task
	calls    [][]string
	failures map[string][]string
}

// New returns an empty fake that reads /XML import files from fs.
func New(fs afero.Fs) *Fake {
	return &Fake{
		fs:       fs,
		tasks:    make(map[string]*task),
		failures: make(map[string][]string),
	}
}

var _ schtasks.Runner = (*Fake)(nil)

// Run dispatches one invocation.
func (f *Fake) Run(ctx context.Context, args ...string) (*schtasks.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), args...))
	if len(args) == 0 {
		return nil, fail(args, msgBadSyntax)
	}
	verb := strings.ToUpper(args[0])
	if queue := f.failures[verb]; len(queue) > 0 {
		f.failures[verb] = queue[1:]
		return nil, fail(args, queue[0])
	}

	flags := parseFlags(args[1:])
	switch verb {
	case "/CREATE":
		return f.create(args, flags)
	case "/DELETE":
		return f.delete(args, flags)
	case "/QUERY":
		return f.query(args, flags)
	case "/CHANGE":
		return f.change(args, flags)
	default:
		return nil, fail(args, msgBadSyntax)
	}
}

// FailNext makes the next invocation of verb (e.g. "/Create") exit nonzero
// with stderr as its diagnostic. Calls queue up.
func (f *Fake) FailNext(verb, stderr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToUpper(verb)
	f.failures[key] = append(f.failures[key], stderr)
}

// Put installs a task definition directly, bypassing /Create.
func (f *Fake) Put(name, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[key(name)] = &task{name: strings.TrimLeft(name, `\`), doc: doc}
}

// XML returns the stored definition of name.
func (f *Fake) XML(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[key(name)]
	if !ok {
		return "", false
	}
	return t.doc, true
}

// Names lists stored task names in sorted order.
func (f *Fake) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.tasks))
	for _, t := range f.tasks {
		names = append(names, t.name)
	}
	sort.Strings(names)
	return names
}

// Calls returns a copy of every recorded invocation.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// CallCount is the number of invocations so far.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Count is the number of invocations of verb.
func (f *Fake) Count(verb string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) > 0 && strings.EqualFold(c[0], verb) {
			n++
		}
	}
	return n
}

// LastCall returns the most recent invocation of verb, or nil.
func (f *Fake) LastCall(verb string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if len(f.calls[i]) > 0 && strings.EqualFold(f.calls[i][0], verb) {
			return append([]string(nil), f.calls[i]...)
		}
	}
	return nil
}

func (f *Fake) create(args []string, flags map[string]string) (*schtasks.Result, error) {
	name, ok := flags["/TN"]
	if !ok || name == "" {
		return nil, fail(args, msgBadSyntax)
	}
	_, force := flags["/F"]
	if _, exists := f.tasks[key(name)]; exists && !force {
		return nil, fail(args, msgExists)
	}

	var doc string
	if path, ok := flags["/XML"]; ok {
		raw, err := afero.ReadFile(f.fs, path)
		if err != nil {
			return nil, fail(args, msgNotFound)
		}
		doc = schtasks.DecodeOutput(raw)
		if !strings.Contains(doc, "<Task") || !strings.Contains(doc, "</Task>") {
			return nil, fail(args, msgBadXML)
		}
	} else {
		var msg string
		doc, msg = render(name, flags)
		if msg != "" {
			return nil, fail(args, msg)
		}
	}

	f.tasks[key(name)] = &task{name: strings.TrimLeft(name, `\`), doc: doc}
	return &schtasks.Result{Stdout: fmt.Sprintf("SUCCESS: The scheduled task %q has successfully been created.\r\n", strings.TrimLeft(name, `\`))}, nil
}

func (f *Fake) delete(args []string, flags map[string]string) (*schtasks.Result, error) {
	name := flags["/TN"]
	t, ok := f.tasks[key(name)]
	if !ok {
		return nil, fail(args, msgNotFound)
	}
	delete(f.tasks, key(name))
	return &schtasks.Result{Stdout: fmt.Sprintf("SUCCESS: The scheduled task %q was successfully deleted.\r\n", t.name)}, nil
}

func (f *Fake) query(args []string, flags map[string]string) (*schtasks.Result, error) {
	if name, ok := flags["/TN"]; ok {
		t, ok := f.tasks[key(name)]
		if !ok {
			return nil, fail(args, msgNotFound)
		}
		if _, xml := flags["/XML"]; xml {
			return &schtasks.Result{Stdout: t.doc}, nil
		}
		return &schtasks.Result{Stdout: csvRow(t)}, nil
	}

	names := make([]string, 0, len(f.tasks))
	for k := range f.tasks {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	if _, noHeader := flags["/NH"]; !noHeader {
		b.WriteString("\"TaskName\",\"Next Run Time\",\"Status\"\r\n")
	}
	for _, k := range names {
		b.WriteString(csvRow(f.tasks[k]))
	}
	return &schtasks.Result{Stdout: b.String()}, nil
}

func (f *Fake) change(args []string, flags map[string]string) (*schtasks.Result, error) {
	t, ok := f.tasks[key(flags["/TN"])]
	if !ok {
		return nil, fail(args, msgNotFound)
	}
	_, enable := flags["/ENABLE"]
	_, disable := flags["/DISABLE"]
	if enable == disable {
		return nil, fail(args, msgBadSyntax)
	}
	t.doc = setSettingsEnabled(t.doc, enable)
	return &schtasks.Result{Stdout: fmt.Sprintf("SUCCESS: The parameters of scheduled task %q have been changed.\r\n", t.name)}, nil
}

func csvRow(t *task) string {
	status := "Ready"
	if !enabled(t.doc) {
		status = "Disabled"
	}
	next := "N/A"
	if status == "Ready" {
		if d := taskxml.Parse(t.name, t.doc); d.StartDate != "" {
			next = d.StartDate + " " + d.StartTime + ":00"
		}
	}
	return fmt.Sprintf("\"\\%s\",\"%s\",\"%s\"\r\n", t.name, next, status)
}

func enabled(doc string) bool {
	settings, ok := taskxml.Block(doc, "Settings")
	if !ok {
		return true
	}
	idx := strings.LastIndex(settings, "<Enabled>false</Enabled>")
	return idx < 0
}

func setSettingsEnabled(doc string, on bool) string {
	start := strings.Index(doc, "<Settings>")
	end := strings.Index(doc, "</Settings>")
	if start < 0 || end < start {
		return doc
	}
	section := doc[start:end]
	want := fmt.Sprintf("<Enabled>%t</Enabled>", on)
	switch {
	case strings.Contains(section, "<Enabled>true</Enabled>"):
		section = strings.Replace(section, "<Enabled>true</Enabled>", want, 1)
	case strings.Contains(section, "<Enabled>false</Enabled>"):
		section = strings.Replace(section, "<Enabled>false</Enabled>", want, 1)
	default:
		section += "  " + want + "\n  "
	}
	return doc[:start] + section + doc[end:]
}

var valued = map[string]bool{
	"/TN": true, "/SC": true, "/MO": true, "/D": true, "/M": true, "/I": true,
	"/SD": true, "/ST": true, "/ED": true, "/ET": true, "/DU": true, "/RI": true,
	"/TR": true, "/RL": true, "/XML": true, "/FO": true, "/RU": true, "/RP": true,
}

// parseFlags maps each /FLAG to the argument after it. Switches (/F, /NH,
// /ENABLE, a trailing /XML) map to "".
func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)
	for i := 0; i < len(args); i++ {
		flag := strings.ToUpper(args[i])
		if !strings.HasPrefix(flag, "/") {
			continue
		}
		if valued[flag] && i+1 < len(args) {
			flags[flag] = args[i+1]
			i++
			continue
		}
		flags[flag] = ""
	}
	return flags
}

func key(name string) string {
	return strings.ToLower(strings.TrimLeft(name, `\`))
}

func fail(args []string, stderr string) error {
	return &schtasks.CommandError{Args: append([]string(nil), args...), ExitCode: 1, Stderr: stderr}
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
