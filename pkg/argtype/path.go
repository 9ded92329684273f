package argtype

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/afero"

	"github.com/psaab/bessctl/pkg/config"
)

// CompleteFilename lists entries that could complete partial, relative
// to baseDir. Directories get a trailing "/"; files must end in suffix,
// which is stripped from the candidate. Names containing whitespace are
// never offered, and dot entries only when partial's basename starts
// with a dot. Filesystem errors yield no candidates.
func CompleteFilename(fs afero.Fs, partial, baseDir, suffix string) []string {
	subDir, partialBase := path.Split(partial)
	target := JoinPath(baseDir, subDir)
	if target == "" {
		target = "."
	}

	infos, err := afero.ReadDir(fs, target)
	if err != nil {
		return nil
	}

	type entry struct {
		name  string
		isDir bool
	}
	entries := []entry{{".", true}, {"..", true}}
	for _, fi := range infos {
		entries = append(entries, entry{name: fi.Name(), isDir: fi.IsDir()})
	}

	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.name, ".") && !strings.HasPrefix(partialBase, ".") {
			continue
		}
		if strings.IndexFunc(e.name, unicode.IsSpace) >= 0 {
			continue
		}
		if !strings.HasPrefix(e.name, partialBase) {
			continue
		}
		if e.isDir {
			out = append(out, subDir+e.name+"/")
			continue
		}
		if !strings.HasSuffix(e.name, suffix) {
			continue
		}
		out = append(out, subDir+strings.TrimSuffix(e.name, suffix))
	}
	sort.Strings(out)
	return out
}

// FileSource returns a Source completing paths under baseDir.
func FileSource(fs afero.Fs, baseDir func() string, suffix string) Source {
	return func(_ context.Context, partial string) ([]string, error) {
		return CompleteFilename(fs, partial, baseDir(), suffix), nil
	}
}

// JoinPath resolves p against baseDir the way the shell does for
// configuration names: "~" is expanded and absolute paths ignore baseDir.
func JoinPath(baseDir, p string) string {
	p = config.ExpandHome(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}
