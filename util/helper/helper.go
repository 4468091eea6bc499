// functions with side effect
package helper

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/go-sprout/sprout"
	"github.com/go-sprout/sprout/group/all"
	"github.com/gobwas/glob"
	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"
	"github.com/vincent-petithory/dataurl"
	"golang.org/x/term"

	"github.com/sagan/aimeta/util"
)

// Input is one file argument read into memory.
type Input struct {
	// File name, "-" for stdin or "data:" for a data URL.
	Name string
	// Declared type tag: the file extension or the data URL media type.
	Declared string
	Data     []byte
}

// ReadInput reads a file argument: a file name, "-" for stdin or a
// "data:" URL (what a browser drop target hands over).
func ReadInput(arg string, stdin io.Reader) (*Input, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return &Input{Name: arg, Data: data}, nil
	case strings.HasPrefix(arg, "data:"):
		u, err := dataurl.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid data url: %w", err)
		}
		return &Input{Name: "data:", Declared: u.ContentType(), Data: u.Data}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, err
	}
	return &Input{Name: arg, Declared: filepath.Ext(arg), Data: data}, nil
}

// Recognize "*.png" style glob, return parsed filenames.
// Args that are not globs, or match nothing, are kept as is.
func ParseFilenameArgs(args ...string) []string {
	names := []string{}
	for _, arg := range args {
		if arg == "-" || strings.HasPrefix(arg, "data:") || !strings.ContainsAny(arg, "*?[{") {
			names = append(names, arg)
		} else if filenames := ParseGlobFilenames(arg); len(filenames) > 0 {
			names = append(names, filenames...)
		} else {
			names = append(names, arg)
		}
	}
	return util.UniqueSlice(names)
}

// ParseGlobFilenames expands a shell-like glob pattern into the sorted
// matching paths on disk. Relative patterns give relative paths.
// Hidden path segments only match a pattern segment that starts with '.'.
// Brace expansion and extglob are not supported.
func ParseGlobFilenames(pattern string) []string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}
	if pattern == "~" || strings.HasPrefix(pattern, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			pattern = filepath.Join(home, strings.TrimPrefix(pattern[1:], "/"))
		}
	}
	patternSlash := filepath.ToSlash(pattern)
	g, err := glob.Compile(patternSlash, '/')
	if err != nil {
		return nil
	}
	abs := filepath.IsAbs(pattern)
	var matches []string
	filepath.WalkDir(walkRoot(pattern), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		target := path
		if abs {
			target, err = filepath.Abs(path)
		} else {
			target, err = filepath.Rel(".", path)
		}
		if err != nil {
			return nil
		}
		target = filepath.ToSlash(target)
		if hiddenMismatch(patternSlash, target) || !g.Match(target) {
			return nil
		}
		matches = append(matches, filepath.Clean(filepath.FromSlash(target)))
		return nil
	})
	slices.Sort(matches)
	return matches
}

// walkRoot is the directory part of the pattern before any glob meta char.
func walkRoot(pattern string) string {
	prefix := pattern
	if i := strings.IndexAny(pattern, "*?[{"); i >= 0 {
		prefix = pattern[:i]
	}
	if i := strings.LastIndexAny(prefix, `/\`); i >= 0 {
		return filepath.Clean(prefix[:i+1])
	}
	return "."
}

func hiddenMismatch(patternSlash, targetSlash string) bool {
	patternSegments := strings.Split(patternSlash, "/")
	targetSegments := strings.Split(targetSlash, "/")
	if len(patternSegments) != len(targetSegments) {
		return false
	}
	for i, segment := range targetSegments {
		if strings.HasPrefix(segment, ".") && segment != "." && segment != ".." &&
			!strings.HasPrefix(patternSegments[i], ".") {
			return true
		}
	}
	return false
}

// Ask user to confirm an (dangerous) action via typing yes in tty
func AskYesNoConfirm(prompt string) bool {
	if prompt == "" {
		prompt = "Will do the action"
	}
	fmt.Fprintf(os.Stderr, "%s, are you sure? (yes/no): ", prompt)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, `Abort due to stdin is NOT tty. Use a proper flag (like "--force") to skip the prompt`+"\n")
		return false
	}
	for {
		input := ""
		fmt.Scanf("%s\n", &input)
		switch input {
		case "yes", "YES", "Yes":
			return true
		case "n", "N", "no", "NO", "No":
			return false
		default:
			if len(input) > 0 {
				fmt.Fprintf(os.Stderr, "Respond with yes or no (Or use Ctrl+C to abort): ")
			} else {
				return false
			}
		}
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Return fullpath = join(dir,name), suitable for creating a new file in dir.
// If file already exists, append the proper numeric suffix to make sure fullpath does not exist.
// Note if a file system access error happens, it return last checked filename path along with the error
func GetNewFilePath(dir string, name string) (fullpath string, err error) {
	if dir == "" && name == "" {
		return "", fmt.Errorf("empty dir & name")
	}
	fullpath = filepath.Join(dir, name)
	if exists, err := util.FileExists(fullpath); !exists || err != nil {
		return fullpath, err
	}
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	for i := 1; ; i++ {
		fullpath = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if exists, err := util.FileExists(fullpath); !exists || err != nil {
			return fullpath, err
		}
	}
}

// WriteOutput writes data to the named file atomically, or to stdout if
// name is "-". An existing file is only replaced if force is set or the
// user confirms.
func WriteOutput(name string, data []byte, force bool, stdout io.Writer) error {
	if name == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if exists, err := util.FileExists(name); err != nil {
		return err
	} else if exists && !force && !AskYesNoConfirm(fmt.Sprintf("Overwrite %q", name)) {
		return fmt.Errorf("output file %q exists", name)
	}
	return atomic.WriteFile(name, bytes.NewReader(data))
}

var handler *sprout.DefaultHandler

// sprout provided template funcs
var templateFuncs map[string]any

func init() {
	handler = sprout.New()
	handler.AddGroups(all.RegistryGroup())
	templateFuncs = handler.Build()
}

// Simple wrapper on Go text template.Template.
// Add JavaScript exection (eval) ability.
type Template struct {
	*template.Template
	jsvm *goja.Runtime
	mu   sync.Mutex
}

// Execute Go text template and return rendered string.
// It supports a special "eval" function.
// The result string is trim spaced.
func (t *Template) Exec(data any) (string, error) {
	var buf bytes.Buffer
	if t.jsvm != nil && data != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		// allow data sharing between Go text template runtime and JavaScript runtime
		if m, ok := data.(map[string]any); ok {
			data = maps.Clone(m)
		}
		t.jsvm.Set("global", data)
	}
	if err := t.Template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Get a Go text template instance from tpl string.
// If tpl starts with "@" char, treat it (the rest part after @) as a file name
// and read template contents from it instead.
func GetTemplate(tpl string, strict bool) (*Template, error) {
	if strings.HasPrefix(tpl, "@") {
		contents, err := os.ReadFile(tpl[1:])
		if err != nil {
			return nil, err
		}
		tpl = string(contents)
	}
	templateInstance := template.New("template").Funcs(templateFuncs)
	if strict {
		templateInstance = templateInstance.Option("missingkey=error")
	}
	t, err := templateInstance.Parse(tpl)
	var jsvm *goja.Runtime
	if err != nil && strings.Contains(err.Error(), ` function "eval" not defined`) {
		jsvm = goja.New()
		new(require.Registry).Enable(jsvm)
		console.Enable(jsvm)
		templateInstance.Funcs(template.FuncMap{
			"eval": func(input any) any {
				v, e := util.Eval(jsvm, input)
				if e != nil {
					log.Printf("eval error: %v", e)
				}
				return v
			},
		})
		t, err = templateInstance.Parse(tpl)
	}
	if err != nil {
		return nil, err
	}
	return &Template{Template: t, jsvm: jsvm}, nil
}
