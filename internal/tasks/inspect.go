package tasks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shortrun/shortrun/internal/logging"
	"github.com/shortrun/shortrun/internal/taskxml"
	"github.com/shortrun/shortrun/internal/workerpool"
)

// TaskRow is one line of the scheduler's tabular listing.
type TaskRow struct {
	Name        string `json:"name"`
	NextRunTime string `json:"next_run_time"`
	Status      string `json:"status"`
}

// TaskSummary is one author-search hit.
type TaskSummary struct {
	Name    string `json:"name"`
	Author  string `json:"author"`
	Enabled bool   `json:"enabled"`
}

// Progress is told how many of total candidates have been inspected. It is
// called from worker goroutines.
type Progress func(done, total int)

const systemNamespace = `Microsoft\`

// ListTasks returns the tasks this tool owns, optionally narrowed to one
// alias. It reads the CSV listing only and never touches XML.
func (s *Scheduler) ListTasks(ctx context.Context, alias string) ([]TaskRow, error) {
	rows, err := s.queryAll(ctx)
	if err != nil {
		return nil, err
	}
	prefix := TaskPrefix
	if alias != "" {
		prefix = AliasPrefix(alias)
	}
	var out []TaskRow
	for _, r := range rows {
		if strings.HasPrefix(r.Name, prefix) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListByAuthor inspects the XML of every task outside the Microsoft
// namespace and returns those whose author matches, case-insensitively.
// Lookups fan out across a bounded worker pool; result order is not defined.
func (s *Scheduler) ListByAuthor(ctx context.Context, author string, progress Progress) ([]TaskSummary, error) {
	rows, err := s.queryAll(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []string
	for _, r := range rows {
		if strings.HasPrefix(r.Name, systemNamespace) {
			continue
		}
		candidates = append(candidates, r.Name)
	}
	total := len(candidates)
	if progress != nil {
		progress(0, total)
	}
	if total == 0 {
		return nil, nil
	}

	workers := s.workers
	if workers <= 0 {
		workers = workerpool.SizeForCPU(2, 8)
	}

	var (
		mu      sync.Mutex
		matches []TaskSummary
		done    atomic.Int64
		failed  atomic.Int64
	)
	want := strings.TrimSpace(author)
	err = workerpool.Each(ctx, workers, candidates, func(ctx context.Context, _ int, name string) {
		defer func() {
			if progress != nil {
				progress(int(done.Add(1)), total)
			}
		}()
		doc, err := s.exportXML(ctx, name)
		if err != nil {
			failed.Add(1)
			log.Debug("author probe failed", logging.KeyTask, name, logging.KeyError, err.Error())
			return
		}
		d := taskxml.Parse(name, doc)
		if !strings.EqualFold(strings.TrimSpace(d.Author), want) {
			return
		}
		mu.Lock()
		matches = append(matches, TaskSummary{Name: name, Author: d.Author, Enabled: d.Enabled})
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	if n := failed.Load(); n > 0 {
		log.Debug("author search skipped unreadable tasks", "count", n)
	}
	return matches, nil
}

// Details reverse-parses one task's XML.
func (s *Scheduler) Details(ctx context.Context, name string) (*taskxml.Details, error) {
	doc, err := s.exportXML(ctx, name)
	if err != nil {
		return nil, err
	}
	return taskxml.Parse(name, doc), nil
}

// queryAll runs /Query /FO CSV /NH and parses every row, leading backslash
// stripped.
func (s *Scheduler) queryAll(ctx context.Context) ([]TaskRow, error) {
	res, err := s.runner.Run(ctx, "/Query", "/FO", "CSV", "/NH")
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return parseRows(res.Stdout), nil
}

func parseRows(output string) []TaskRow {
	r := csv.NewReader(strings.NewReader(output))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []TaskRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Skip the malformed line; csv.Reader resumes at the next one.
			continue
		}
		if len(rec) == 0 {
			continue
		}
		name := strings.TrimLeft(strings.TrimSpace(rec[0]), `\`)
		if name == "" || name == "TaskName" {
			continue
		}
		rows = append(rows, TaskRow{
			Name:        name,
			NextRunTime: field(rec, 1),
			Status:      field(rec, 2),
		})
	}
	return rows
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}
