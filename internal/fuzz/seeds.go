package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"
)

const maxSeedBytes = 64 << 10 // 64 KiB

var lineSeeds = []string{
	"",
	"-d none p/A.sh",
	`-classpath "lib;my libs";other -d out p/A.sh`,
	`"unterminated`,
	`a""b ""`,
	"\t  -encoding  UTF-8 \t",
}

// fixtureSeeds adds every archive under testdata/golden.
func fixtureSeeds(f *testing.F) {
	walkGolden(func(data []byte) { f.Add(data) })
	f.Add([]byte("compile: A.sh\n-- A.sh --\necho\n-- expected.log --\n"))
}

// unitSeeds adds every unit shipped with or inside the golden fixtures.
func unitSeeds(f *testing.F) {
	walkGolden(func(data []byte) {
		for _, file := range txtar.Parse(data).Files {
			f.Add(clampSeed(file.Data))
		}
	})
	lib := filepath.Join("..", "..", "testdata", "lib")
	_ = filepath.WalkDir(lib, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".sh" {
			return nil
		}
		// #nosec G304 -- path comes from the repository testdata walk
		if src, err := os.ReadFile(path); err == nil {
			f.Add(clampSeed(src))
		}
		return nil
	})
	f.Add([]byte("greet() { echo hi; }\np.Tool.greet\n"))
}

func walkGolden(add func([]byte)) {
	root := filepath.Join("..", "..", "testdata", "golden")
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".txtar" {
			return nil
		}
		// #nosec G304 -- path comes from the repository testdata walk
		if data, err := os.ReadFile(path); err == nil {
			add(clampSeed(data))
		}
		return nil
	})
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}
