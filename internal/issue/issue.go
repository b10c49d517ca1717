// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	SyntaxErrorId Id = iota + 1
	CircularIncludeId
	IncludeDepthExceededId
	UnresolvedReferenceId
	ReferenceCycleId
	CorruptArtifactId
	ConfigLoadFailedId
	WatchFailedId
	TimeoutId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // must never be empty, because we need to have docs about all issue types
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	syntaxErrorIssue = &Issue{
		id: SyntaxErrorId,
		mdMsg: `
# Syntax error in .tsk document!

The parser stopped at the line and column reported above.

## Common issues:
- Unmatched double or single quote
- Section header missing its closing bracket: ` + "`[server`" + `
- A fujsen block whose braces never balance
- A NUL byte embedded in the file (corrupt or binary input)

## Things you can try:
- Fix the reported line; re-run with:
~~~
$ tsk validate yourfile.tsk
~~~

## Example of a valid document:
~~~
[server]
host = "localhost"
port = 8080

[database]
url = "postgres://${server.host}/app"
~~~`,
	}

	circularIncludeIssue = &Issue{
		id: CircularIncludeId,
		mdMsg: `
# Circular include detected!

Your include directives form a cycle. The full chain is reported above,
ending in the file that was reached twice.

## Example of a cycle:
~~~
# a.tsk
include "b.tsk"

# b.tsk
include "a.tsk"    # cycle: a.tsk -> b.tsk -> a.tsk
~~~

## Things you can try:
- Remove one edge of the cycle
- Extract the shared keys into a third file both sides include`,
	}

	includeDepthExceededIssue = &Issue{
		id: IncludeDepthExceededId,
		mdMsg: `
# Include depth limit exceeded!

The include chain is deeper than the configured maximum.

## Things you can try:
- Flatten your include hierarchy
- Raise the limit in your engine settings:
~~~cue
max_include_depth: 32
~~~`,
	}

	unresolvedReferenceIssue = &Issue{
		id: UnresolvedReferenceId,
		mdMsg: `
# Unresolved reference!

A ` + "`${section.key}`" + ` or ` + "`@{section.key}`" + ` token names a key that does
not exist in the document (including its includes and overlays).

By default this is a warning and the token is left in place; in strict
mode it is an error.

## Things you can try:
- Check the referenced section and key for typos
- List the flat key space:
~~~
$ tsk parse --flat yourfile.tsk
~~~
- Disable strict mode if the key is intentionally optional`,
	}

	referenceCycleIssue = &Issue{
		id: ReferenceCycleId,
		mdMsg: `
# Reference cycle detected!

References resolve through other references, and the chain loops back
on itself.

## Example of a cycle:
~~~
[a]
x = "${b.y}"

[b]
y = "${a.x}"    # cycle: a.x -> b.y -> a.x
~~~

## Things you can try:
- Break the loop by giving one of the keys a literal value`,
	}

	corruptArtifactIssue = &Issue{
		id: CorruptArtifactId,
		mdMsg: `
# Corrupt .pnt artifact!

The binary artifact failed header or checksum verification and its
payload cannot be trusted.

## Common causes:
- Truncated download or interrupted write
- The file is not a .pnt artifact at all
- An artifact written by a newer engine version

## Things you can try:
- Recompile from the .tsk source:
~~~
$ tsk compile yourfile.tsk
~~~
- Compare the artifact against its source of truth`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load engine settings!

Could not load the tsk settings file.

## Settings file locations:
- Linux: ~/.config/tsk/config.cue
- macOS: ~/Library/Application Support/tsk/config.cue
- Windows: %APPDATA%\tsk\config.cue

## Things you can try:
- Check the settings syntax
- Remove the settings file to use defaults

## Example settings:
~~~cue
max_include_depth: 32
cache_ttl: "5m"
debounce: "200ms"
strict_references: false
default_compression: "gzip"
~~~`,
	}

	watchFailedIssue = &Issue{
		id: WatchFailedId,
		mdMsg: `
# File watcher failed!

The hot-reload watcher hit a fatal filesystem notification error.

## Common causes:
- inotify watch or file descriptor limits exhausted
- The watched directory was removed

## Things you can try:
- Raise the inotify limits:
~~~
$ sudo sysctl fs.inotify.max_user_watches=524288
~~~
- Restart the watch after fixing the underlying condition`,
	}

	timeoutIssue = &Issue{
		id: TimeoutId,
		mdMsg: `
# Operation timed out!

An I/O-bound step (file read, decompression, evaluation) exceeded its
configured time limit.

## Things you can try:
- Raise the load timeout in your engine settings:
~~~cue
load_timeout: "30s"
~~~
- Check for very large include trees or slow network filesystems`,
	}

	issues = map[Id]*Issue{
		syntaxErrorIssue.Id():          syntaxErrorIssue,
		circularIncludeIssue.Id():      circularIncludeIssue,
		includeDepthExceededIssue.Id(): includeDepthExceededIssue,
		unresolvedReferenceIssue.Id():  unresolvedReferenceIssue,
		referenceCycleIssue.Id():       referenceCycleIssue,
		corruptArtifactIssue.Id():      corruptArtifactIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		watchFailedIssue.Id():          watchFailedIssue,
		timeoutIssue.Id():              timeoutIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
