// Package taskxml edits and probes Task Scheduler XML definitions at the
// text level. It understands exactly the element spelling and nesting that
// `schtasks /Query /XML` exports and nothing more; there is no schema model.
package taskxml

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// span locates one element, open tag through close tag, inside a document.
type span struct {
	tag        string
	start, end int
}

var (
	elementMu  sync.Mutex
	elementRes = map[string]*regexp.Regexp{}
)

func elementRe(tag string) *regexp.Regexp {
	elementMu.Lock()
	defer elementMu.Unlock()
	if re, ok := elementRes[tag]; ok {
		return re
	}
	q := regexp.QuoteMeta(tag)
	re := regexp.MustCompile(`(?s)<` + q + `(?:\s[^>]*)?(?:/>|>.*?</` + q + `\s*>)`)
	elementRes[tag] = re
	return re
}

func findAll(doc string, tags ...string) []span {
	var spans []span
	for _, tag := range tags {
		for _, loc := range elementRe(tag).FindAllStringIndex(doc, -1) {
			spans = append(spans, span{tag: tag, start: loc[0], end: loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

// Block returns the first element (open tag through close tag) named by any
// of tags, in document order.
func Block(doc string, tags ...string) (string, bool) {
	spans := findAll(doc, tags...)
	if len(spans) == 0 {
		return "", false
	}
	return doc[spans[0].start:spans[0].end], true
}

// Has reports whether doc contains an element named tag.
func Has(doc, tag string) bool {
	return elementRe(tag).MatchString(doc)
}

// ChildText returns the unescaped text content of the first tag element in
// block. Self-closing elements yield "".
func ChildText(block, tag string) (string, bool) {
	el, ok := Block(block, tag)
	if !ok {
		return "", false
	}
	open := strings.Index(el, ">")
	if strings.HasSuffix(el[:open+1], "/>") {
		return "", true
	}
	closeIdx := strings.LastIndex(el, "</")
	return strings.TrimSpace(unescape(el[open+1 : closeIdx])), true
}

// ChildTexts returns the text content of every tag element in block.
func ChildTexts(block, tag string) []string {
	var out []string
	for _, sp := range findAll(block, tag) {
		text, _ := ChildText(block[sp.start:sp.end], tag)
		out = append(out, text)
	}
	return out
}

var childNameRe = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9]*)\s*/?>`)

// ChildNames lists the names of the direct children of the container
// element. Used for list-of-empty-element shapes like
// <DaysOfWeek><Monday /><Friday /></DaysOfWeek>.
func ChildNames(block, container string) []string {
	el, ok := Block(block, container)
	if !ok {
		return nil
	}
	open := strings.Index(el, ">")
	closeIdx := strings.LastIndex(el, "</")
	if closeIdx <= open {
		return nil
	}
	var names []string
	for _, m := range childNameRe.FindAllStringSubmatch(el[open+1:closeIdx], -1) {
		names = append(names, m[1])
	}
	return names
}

// setChild sets the text of the tag child of an element block, inserting the
// child when absent. New children go in front of the first element named in
// before, or ahead of the closing tag when none of them is present.
func setChild(block, tag, value string, before ...string) string {
	escaped := escape(value)

	if sp := findAll(block, tag); len(sp) > 0 {
		// Skip matches that are the block itself.
		for _, s := range sp {
			if s.start == 0 {
				continue
			}
			return block[:s.start] + "<" + tag + ">" + escaped + "</" + tag + ">" + block[s.end:]
		}
	}

	block = expandSelfClosing(block)
	insertAt := strings.LastIndex(block, "</")
	for _, anchor := range before {
		if sp := findAll(block, anchor); len(sp) > 0 && sp[0].start > 0 {
			insertAt = sp[0].start
			break
		}
	}

	indent := lineIndent(block, insertAt)
	child := "<" + tag + ">" + escaped + "</" + tag + ">"
	if indent == "" {
		return block[:insertAt] + child + block[insertAt:]
	}
	if strings.HasPrefix(block[insertAt:], "</") {
		// Closing tag: children sit one level deeper.
		return block[:insertAt] + "  " + child + "\n" + indent + block[insertAt:]
	}
	return block[:insertAt] + child + "\n" + indent + block[insertAt:]
}

// expandSelfClosing turns <Tag /> into <Tag></Tag> so children can be added.
func expandSelfClosing(block string) string {
	open := strings.Index(block, ">")
	if open < 0 || !strings.HasSuffix(block[:open+1], "/>") {
		return block
	}
	name := strings.TrimLeft(block[:open], "<")
	name = strings.TrimSpace(strings.TrimSuffix(name, "/"))
	if i := strings.IndexAny(name, " \t\r\n"); i >= 0 {
		name = name[:i]
	}
	head := strings.TrimSpace(strings.TrimSuffix(block[:open], "/"))
	return head + "></" + name + ">"
}

// lineIndent returns the whitespace preceding pos on its line, or "" when
// something other than whitespace precedes it.
func lineIndent(s string, pos int) string {
	lineStart := strings.LastIndex(s[:pos], "\n") + 1
	prefix := s[lineStart:pos]
	if strings.TrimSpace(prefix) != "" || lineStart == 0 {
		return ""
	}
	return prefix
}

// replaceSpans applies fn to every element named by tags and reassembles doc.
func replaceSpans(doc string, fn func(tag, block string) string, tags ...string) (string, int) {
	spans := findAll(doc, tags...)
	if len(spans) == 0 {
		return doc, 0
	}
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		if sp.start < last {
			continue // nested match of an already rewritten element
		}
		b.WriteString(doc[last:sp.start])
		b.WriteString(fn(sp.tag, doc[sp.start:sp.end]))
		last = sp.end
	}
	b.WriteString(doc[last:])
	return b.String(), len(spans)
}

func escape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

var unescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&#34;", `"`, "&#39;", "'", "&#xA;", "\n", "&#xD;", "\r", "&#x9;", "\t", "&amp;", "&")

func unescape(s string) string {
	return unescaper.Replace(s)
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseMinutes converts an ISO 8601 duration such as PT1H30M or P1D into
// whole minutes. Seconds are truncated.
func ParseMinutes(iso string) (int, bool) {
	m := isoDurationRe.FindStringSubmatch(strings.TrimSpace(iso))
	if m == nil || iso == "P" || iso == "PT" {
		return 0, false
	}
	total := 0
	for i, mult := range []int{24 * 60, 60, 1, 0} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		if mult == 0 {
			total += n / 60
			continue
		}
		total += n * mult
	}
	return total, true
}

// FormatMinutes renders minutes as an ISO 8601 duration (PT15M, PT2H, P1D).
func FormatMinutes(minutes int) string {
	switch {
	case minutes > 0 && minutes%(24*60) == 0:
		return fmt.Sprintf("P%dD", minutes/(24*60))
	case minutes > 0 && minutes%60 == 0:
		return fmt.Sprintf("PT%dH", minutes/60)
	default:
		return fmt.Sprintf("PT%dM", minutes)
	}
}
