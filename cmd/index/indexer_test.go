package index

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestSaveCsv(t *testing.T) {
	filelist := FileList{{Path: "sub/a.png", Prompt: "a cat, 1girl", Width: 512}, nil}

	var sb strings.Builder
	if err := filelist.SaveCsv(&sb, "img", []string{"path", "prompt", "width", "mtime"}); err != nil {
		t.Fatal(err)
	}
	want := "img_path,img_prompt,img_width,img_mtime\nsub/a.png,\"a cat, 1girl\",512,\n"
	if sb.String() != want {
		t.Errorf("csv = %q, want %q", sb.String(), want)
	}

	sb.Reset()
	if err := filelist.SaveCsv(&sb, "", nil); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sb.String(), "path,name,dir_path,size,mtime,mdate,format,") {
		t.Errorf("default header = %q", strings.SplitN(sb.String(), "\n", 2)[0])
	}

	if err := filelist.SaveCsv(&sb, "", []string{"path", "color"}); err == nil {
		t.Errorf("expected error for unknown column")
	}
}

func TestDoIndex(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.txt", ".hidden.png", "x.png.part", "sub/c.JPG", ".git/d.png"} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("not an image"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	tests := []struct {
		name    string
		options IndexOptions
		want    []string
	}{
		{"recursive", IndexOptions{AllowedExts: DefaultExtensions, Concurrency: 2}, []string{"a.png", "sub/c.JPG"}},
		{"no recursive", IndexOptions{AllowedExts: DefaultExtensions, NoRecursive: true}, []string{"a.png"}},
		{"extensions", IndexOptions{AllowedExts: []string{"txt"}}, []string{"b.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filelist, err := doIndex(context.Background(), dir, tt.options)
			if err != nil {
				t.Fatal(err)
			}
			var paths []string
			for _, fi := range filelist {
				paths = append(paths, fi.Path)
				if fi.Size != int64(len("not an image")) || fi.Mdate == "" {
					t.Errorf("%s: size %d, mdate %q", fi.Path, fi.Size, fi.Mdate)
				}
			}
			if !reflect.DeepEqual(paths, tt.want) {
				t.Errorf("paths = %v, want %v", paths, tt.want)
			}
		})
	}
}
