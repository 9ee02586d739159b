package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/fatih/color"

	"github.com/pyhu26/post-woman/internal/model"
)

// out is where every printer writes; tests swap it for a buffer
var out io.Writer = color.Output

// SetOutput redirects printed output and returns the previous writer
func SetOutput(w io.Writer) io.Writer {
	prev := out
	out = w
	return prev
}

// sanitizeOutput removes or escapes potentially dangerous control characters
// that could manipulate terminal display or execute commands
func sanitizeOutput(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			result.WriteRune(r)
		case r == '\x1b':
			// Escape ANSI escape sequences - replace ESC with visible representation
			result.WriteString("\\x1b")
		case unicode.IsControl(r) && r < 0x20:
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		case r == 0x7F:
			result.WriteString("\\x7f")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

var (
	successColor   = color.New(color.FgGreen, color.Bold)
	redirectColor  = color.New(color.FgYellow, color.Bold)
	clientErrColor = color.New(color.FgRed, color.Bold)
	serverErrColor = color.New(color.FgRed, color.Bold, color.BgWhite)
	headerKeyColor = color.New(color.FgCyan)
	methodColor    = color.New(color.FgMagenta, color.Bold)
	urlColor       = color.New(color.FgBlue)
	dimColor       = color.New(color.Faint)
)

func writeln(a ...any) {
	fmt.Fprintln(out, a...)
}

func writef(format string, a ...any) {
	fmt.Fprintf(out, format, a...)
}

// PrintResponse prints a formatted HTTP response
func PrintResponse(resp *model.Response, showHeaders bool) {
	printStatusLine(resp)
	dimColor.Fprintf(out, "  Time: %dms\n\n", resp.Time)

	if showHeaders {
		printHeaders(resp.Headers)
	}
	printBody(resp.Body)
}

func statusLine(resp *model.Response) string {
	if resp.TransportFailure() {
		return "Error"
	}
	if resp.StatusText == "" {
		return fmt.Sprintf("%d", resp.Status)
	}
	return fmt.Sprintf("%d %s", resp.Status, resp.StatusText)
}

func printStatusLine(resp *model.Response) {
	getStatusColor(resp.Status).Fprintf(out, "%s\n", sanitizeOutput(statusLine(resp)))
}

func getStatusColor(code int) *color.Color {
	switch {
	case code >= 200 && code < 300:
		return successColor
	case code >= 300 && code < 400:
		return redirectColor
	case code >= 400 && code < 500:
		return clientErrColor
	default:
		return serverErrColor
	}
}

func printHeaders(headers map[string]string) {
	if len(headers) == 0 {
		return
	}

	writeln("Headers:")
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		headerKeyColor.Fprintf(out, "  %s: ", sanitizeOutput(key))
		writeln(sanitizeOutput(headers[key]))
	}
	writeln()
}

func printKeyValues(title string, entries []model.KeyValue) {
	if len(entries) == 0 {
		return
	}
	writef("%s:\n", title)
	for _, kv := range entries {
		headerKeyColor.Fprintf(out, "  %s: ", sanitizeOutput(kv.Key))
		writef("%s", sanitizeOutput(kv.Value))
		if !kv.Enabled {
			dimColor.Fprint(out, " (disabled)")
		}
		writeln()
	}
}

func printBody(body string) {
	if body == "" {
		dimColor.Fprintln(out, "(empty body)")
		return
	}
	writeln(sanitizeOutput(prettyJSON(body)))
}

func prettyJSON(s string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(s), "", "  "); err != nil {
		return s
	}
	return buf.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// PrintRequest prints a saved request with its headers, params and body
func PrintRequest(req model.Request) {
	methodColor.Fprintf(out, "%s ", req.Method)
	urlColor.Fprintln(out, sanitizeOutput(req.URL))
	if req.Name != "" {
		dimColor.Fprintf(out, "  Name: %s\n", sanitizeOutput(req.Name))
	}
	dimColor.Fprintf(out, "  ID: %s\n", req.ID)
	printKeyValues("Params", req.Params)
	printKeyValues("Headers", req.Headers)
	if req.Body != "" {
		writeln("Body:")
		writeln(sanitizeOutput(prettyJSON(req.Body)))
	}
}

// PrintHistoryEntry prints a one-line history summary
func PrintHistoryEntry(entry *model.HistoryEntry) {
	methodColor.Fprintf(out, "%s ", entry.Method)
	urlColor.Fprintln(out, sanitizeOutput(entry.URL))
	dimColor.Fprintf(out, "  ID: %s\n", entry.ID)
	dimColor.Fprintf(out, "  Time: %s\n", entry.Timestamp.Local().Format("2006-01-02 15:04:05"))

	if entry.Response != nil {
		writef("  Status: ")
		getStatusColor(entry.Response.Status).Fprintln(out, sanitizeOutput(statusLine(entry.Response)))
	}
}

// PrintHistoryDetail prints full request/response details
func PrintHistoryDetail(entry *model.HistoryEntry) {
	writeln("Request:")
	writeln(strings.Repeat("-", 40))
	methodColor.Fprintf(out, "%s ", entry.Method)
	urlColor.Fprintln(out, sanitizeOutput(entry.URL))
	dimColor.Fprintf(out, "ID: %s\n", entry.ID)
	dimColor.Fprintf(out, "Time: %s\n\n", entry.Timestamp.Local().Format("2006-01-02 15:04:05"))

	printHeaders(entry.Headers)

	if entry.Body != "" {
		writeln("Body:")
		writeln(sanitizeOutput(prettyJSON(entry.Body)))
		writeln()
	}

	if entry.Response != nil {
		writeln("\nResponse:")
		writeln(strings.Repeat("-", 40))
		PrintResponse(entry.Response, true)
	}
}

// PrintHistoryList prints history entries in a compact format
func PrintHistoryList(entries []model.HistoryEntry, limit int) {
	if len(entries) == 0 {
		dimColor.Fprintln(out, "No requests in history")
		return
	}

	count := len(entries)
	if limit > 0 && limit < count {
		count = limit
	}

	for i := 0; i < count; i++ {
		e := entries[i]
		dimColor.Fprintf(out, "[%d] ", i+1)
		dimColor.Fprintf(out, "%s ", e.ID)
		methodColor.Fprintf(out, "%-7s ", e.Method)
		urlColor.Fprintf(out, "%-60s ", sanitizeOutput(truncate(e.URL, 60)))

		if e.Response != nil {
			getStatusColor(e.Response.Status).Fprintf(out, "%d ", e.Response.Status)
			dimColor.Fprintf(out, "(%dms)", e.Response.Time)
		}
		writeln()
	}

	if limit > 0 && len(entries) > limit {
		dimColor.Fprintf(out, "\n... and %d more requests\n", len(entries)-limit)
	}
}

// PrintCollectionList prints a list of collections
func PrintCollectionList(collections []model.Collection) {
	if len(collections) == 0 {
		dimColor.Fprintln(out, "No collections found")
		return
	}

	writeln("Collections:")
	for _, col := range collections {
		headerKeyColor.Fprintf(out, "  %s ", sanitizeOutput(col.Name))
		dimColor.Fprintf(out, "(%d requests, %d folders)\n", len(col.AllRequests()), countFolders(col.Folders))
	}
}

func countFolders(folders []model.Folder) int {
	n := len(folders)
	for _, f := range folders {
		n += countFolders(f.Folders)
	}
	return n
}

// PrintCollection prints a collection as a tree of folders and requests
func PrintCollection(col *model.Collection) {
	if len(col.Requests) == 0 && len(col.Folders) == 0 {
		dimColor.Fprintf(out, "Collection '%s' is empty\n", sanitizeOutput(col.Name))
		return
	}

	headerKeyColor.Fprintf(out, "Collection: %s\n", sanitizeOutput(col.Name))
	writeln(strings.Repeat("-", 40))
	n := 0
	printRequestLines(col.Requests, "", &n)
	printFolders(col.Folders, "", &n)
}

func printFolders(folders []model.Folder, indent string, n *int) {
	for _, f := range folders {
		headerKeyColor.Fprintf(out, "%s%s/", indent, sanitizeOutput(f.Name))
		dimColor.Fprintf(out, " (%s)\n", f.ID)
		printRequestLines(f.Requests, indent+"  ", n)
		printFolders(f.Folders, indent+"  ", n)
	}
}

func printRequestLines(requests []model.Request, indent string, n *int) {
	for _, req := range requests {
		*n++
		dimColor.Fprintf(out, "%s[%d] ", indent, *n)
		if req.Name != "" {
			writef("%s: ", sanitizeOutput(req.Name))
		}
		methodColor.Fprintf(out, "%s ", req.Method)
		urlColor.Fprintln(out, sanitizeOutput(req.URL))
	}
}

// PrintSuccess prints a success message
func PrintSuccess(msg string) {
	successColor.Fprintf(out, "✓ %s\n", msg)
}

// PrintError prints an error message
func PrintError(msg string) {
	clientErrColor.Fprintf(out, "✗ %s\n", msg)
}

// PrintAliasList prints aliases sorted by name
func PrintAliasList(aliases *model.Aliases) {
	if len(aliases.Aliases) == 0 {
		dimColor.Fprintln(out, "No aliases found")
		return
	}

	names := make([]string, 0, len(aliases.Aliases))
	for name := range aliases.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	writeln("Aliases:")
	for _, name := range names {
		writef("  ")
		PrintAlias(name, aliases.Aliases[name])
	}
}

// PrintAlias prints a single alias
func PrintAlias(name, url string) {
	headerKeyColor.Fprintf(out, "%s ", sanitizeOutput(name))
	dimColor.Fprint(out, "→ ")
	urlColor.Fprintln(out, sanitizeOutput(url))
}
