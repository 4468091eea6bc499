package index

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sagan/aimeta/constants"
	"github.com/sagan/aimeta/features/aiparams"
	"github.com/sagan/aimeta/features/container"
	"github.com/sagan/aimeta/features/extractor"
)

// IgnoreFilenames and IgnoreFilenameSuffixes are skipped during indexing.
var IgnoreFilenames = []string{
	".DS_Store",   // macOS directory metadata
	"Thumbs.db",   // Windows thumbnail cache
	"desktop.ini", // Windows folder customization
}

var IgnoreFilenameSuffixes = []string{
	".partial",    // rclone transfer temporary file
	".crdownload", // Chrome partial download
	".part",       // Firefox partial download
	".tmp",        // Temporary file
	".aria2",      // aria2 downloading file
}

// Extensions indexed by default.
var DefaultExtensions = []string{"png", "jpg", "jpeg", "webp", "gif", "mp4", "webm", "mov", "mkv"}

type FileInfo struct {
	Path           string    `json:"path"`     // full relative path, "foo/bar/baz.png"
	Name           string    `json:"name"`     // filename, "baz.png"
	DirPath        string    `json:"dir_path"` // parent dir relative path, empty if file is in root path
	Size           int64     `json:"size"`
	Mtime          time.Time `json:"mtime"`
	Mdate          string    `json:"mdate"` // "2006-01-02"
	Format         string    `json:"format"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	ParamsFormat   string    `json:"params_format"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt"`
	Model          string    `json:"model"`
	Sampler        string    `json:"sampler"`
	Steps          string    `json:"steps"`
	CFGScale       string    `json:"cfg_scale"`
	Seed           string    `json:"seed"`
	Workflow       string    `json:"workflow"`  // workflow variant, empty if none
	Resources      string    `json:"resources"` // "type:name" list, "|" separated
	Warnings       int       `json:"warnings"`
}

type FileList []*FileInfo

// columnDef holds how to extract and name a CSV column
type columnDef struct {
	HeaderName string
	StructIdx  []int
}

// SaveCsv writes the file list as csv. Notes:
// 1. Use struct field json tag as output csv column name, prefixed with "prefix_" if prefix is set.
// 2. The first row is header (column names).
// 3. Output time.Time column in "YYYY-MM-DDTHH:mm:ssZ" format.
// 4. "includes" arg is the list of columns (json tag name) to save, if it's nil, write all columns.
// 5. Columns are in struct order if includes is nil, otherwise in includes order.
func (fl FileList) SaveCsv(writer io.Writer, prefix string, includes []string) error {
	w := csv.NewWriter(writer)

	valType := reflect.TypeOf(FileInfo{})
	var tags []string
	stdFields := map[string][]int{} // json tag => struct field index
	for i := 0; i < valType.NumField(); i++ {
		field := valType.Field(i)
		tag := strings.Split(field.Tag.Get("json"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		tags = append(tags, tag)
		stdFields[tag] = field.Index
	}
	if includes == nil {
		includes = tags
	}

	var columns []columnDef
	for _, include := range includes {
		idx, ok := stdFields[include]
		if !ok {
			return fmt.Errorf("invalid include field %q", include)
		}
		name := include
		if prefix != "" {
			name = prefix + "_" + name
		}
		columns = append(columns, columnDef{HeaderName: name, StructIdx: idx})
	}

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.HeaderName
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, file := range fl {
		if file == nil {
			continue
		}
		record := make([]string, len(columns))
		rVal := reflect.ValueOf(*file)
		for i, col := range columns {
			record[i] = formatValue(rVal.FieldByIndex(col.StructIdx))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format(constants.TIME_FORMAT)
		}
	}
	return fmt.Sprintf("%v", v.Interface())
}

func shouldIgnore(filename string) bool {
	if strings.HasPrefix(filename, ".") {
		return true
	}
	if slices.Contains(IgnoreFilenames, filename) {
		return true
	}
	return slices.ContainsFunc(IgnoreFilenameSuffixes, func(suffix string) bool {
		return strings.HasSuffix(filename, suffix)
	})
}

type IndexOptions struct {
	AllowedExts []string // no dot, lower case
	NoRecursive bool
	Concurrency int // <= 0 means unlimited
	Extract     *extractor.Options
}

// doIndex scans the directory and extracts the metadata of every media file.
// Files are listed in walk order; unreadable files are logged and skipped.
func doIndex(ctx context.Context, dir string, options IndexOptions) (FileList, error) {
	var filelist FileList
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (shouldIgnore(d.Name()) || options.NoRecursive) {
				return filepath.SkipDir
			}
			return nil
		} else if shouldIgnore(d.Name()) {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
		if !slices.Contains(options.AllowedExts, ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		parentDir := filepath.ToSlash(filepath.Dir(relPath))
		if parentDir == "." {
			parentDir = ""
		}
		fi := &FileInfo{
			Path:    filepath.ToSlash(relPath),
			Name:    d.Name(),
			DirPath: parentDir,
			Size:    info.Size(),
			Mtime:   info.ModTime(),
		}
		if !fi.Mtime.IsZero() {
			fi.Mdate = fi.Mtime.UTC().Format(constants.DATE_FORMAT)
		}
		filelist = append(filelist, fi)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(filelist, func(i, j int) bool { return filelist[i].Path < filelist[j].Path })

	g, ctx := errgroup.WithContext(ctx)
	if options.Concurrency > 0 {
		g.SetLimit(options.Concurrency)
	}
	for _, fi := range filelist {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(fi.Path)))
			if err != nil {
				log.Warnf("failed to read %s: %v", fi.Path, err)
				return nil
			}
			result := extractor.Extract(data, container.ParseFileType(filepath.Ext(fi.Name)), options.Extract)
			fi.fill(result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filelist, nil
}

func (fi *FileInfo) fill(result *extractor.Result) {
	fi.Format = string(result.Format)
	if result.Image != nil {
		fi.Width = result.Image.Width
		fi.Height = result.Image.Height
	}
	fi.ParamsFormat = string(result.ParamsFormat)
	fi.Prompt = result.Params.GetString(aiparams.KeyPrompt)
	fi.NegativePrompt = result.Params.GetString(aiparams.KeyNegativePrompt)
	fi.Model = result.Params.GetString(aiparams.KeyModel)
	fi.Sampler = result.Params.GetString(aiparams.KeySampler)
	fi.Steps = result.Params.GetString(aiparams.KeySteps)
	fi.CFGScale = result.Params.GetString(aiparams.KeyCFGScale)
	fi.Seed = result.Params.GetString(aiparams.KeySeed)
	if result.Workflow != nil {
		fi.Workflow = string(result.Workflow.Variant)
	} else if result.Prompt != nil {
		fi.Workflow = string(result.Prompt.Variant)
	}
	var names []string
	for _, ref := range result.Resources {
		names = append(names, ref.Type+":"+ref.Name)
	}
	fi.Resources = strings.Join(names, "|")
	fi.Warnings = len(result.Warnings)
}
