// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type (
	// Id identifies a catalogued issue.
	Id int

	// MarkdownMsg is the body rendered for an issue.
	MarkdownMsg string

	// HttpLink is a documentation or external reference.
	HttpLink string

	// Issue is a known failure mode with remediation guidance.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

const (
	ModuleNotFoundId Id = iota + 1
	DependencyCycleId
	InvalidModuleBinaryId
	ConfigLoadFailedId
	ConcurrencyInvariantId
	SourceUnavailableId
	InvalidManifestId
)

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

// Render returns the issue as terminal markdown using the glamour style at
// stylePath ("dark", "light", "notty", or a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range append(i.DocLinks(), i.extLinks...) {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found!

The module, or one of the modules it imports, could not be loaded.

## Locations probed (in order):
1. Directories of modules whose manifest sets ` + "`hint: true`" + `
2. ` + "`<module>/<module>.wasm`" + `
3. ` + "`shared/<module>.wasm`" + `

## Things you can try:
- List the locations for a module:
~~~
$ lazyload locate <module>
~~~
- Print the full dependency plan to find the missing import:
~~~
$ lazyload plan <module>
~~~
- Check the ` + "`sources`" + ` list in your config file`,
		docLinks: []HttpLink{"https://github.com/invowk/lazyload#locations"},
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Circular module imports!

Two or more modules import each other, directly or through other modules.
Loading stops instead of waiting forever.

## Things you can try:
- Run ` + "`lazyload plan <module>`" + ` to print the cycle
- Move the shared functions into a module that both can import`,
	}

	invalidModuleBinaryIssue = &Issue{
		id: InvalidModuleBinaryId,
		mdMsg: `
# Invalid module binary!

A module file was found but is not a valid WebAssembly binary.

## Things you can try:
- Rebuild the module
- Check that the file was not truncated while copying or downloading
- Inspect it with:
~~~
$ lazyload deps <file.wasm>
~~~`,
		extLinks: []HttpLink{"https://webassembly.github.io/spec/core/binary/index.html"},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check the CUE syntax of your config file
- Print the path being read:
~~~
$ lazyload config path
~~~
- Start over from the defaults:
~~~
$ lazyload config init --force
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	concurrencyInvariantIssue = &Issue{
		id: ConcurrencyInvariantId,
		mdMsg: `
# Internal loader error!

The in-flight load registry was found in an inconsistent state. This is a bug.

## Things you can try:
- Re-run with ` + "`--verbose`" + ` and report the log output`,
	}

	sourceUnavailableIssue = &Issue{
		id: SourceUnavailableId,
		mdMsg: `
# Module source unavailable!

A configured source could not be opened.

## Things you can try:
- For ` + "`dir`" + ` sources, check the directory exists
- For ` + "`bundle`" + ` sources, use a .zip, .tar, .tar.gz or .tgz archive
- For ` + "`http`" + ` sources, use an absolute http(s) URL`,
	}

	invalidManifestIssue = &Issue{
		id: InvalidManifestId,
		mdMsg: `
# Invalid module manifest!

A ` + "`manifest.json`" + ` does not match the manifest schema.

## Example manifest:
~~~json
{
  "module": "billing",
  "hint": true,
  "components": [{"type": "billing.Invoices", "name": "Invoices"}],
  "routes": [{"route": "/invoices/{id:int}", "type": "billing.Invoices"}]
}
~~~`,
	}

	issues = map[Id]*Issue{
		moduleNotFoundIssue.Id():       moduleNotFoundIssue,
		dependencyCycleIssue.Id():      dependencyCycleIssue,
		invalidModuleBinaryIssue.Id():  invalidModuleBinaryIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		concurrencyInvariantIssue.Id(): concurrencyInvariantIssue,
		sourceUnavailableIssue.Id():    sourceUnavailableIssue,
		invalidManifestIssue.Id():      invalidManifestIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
