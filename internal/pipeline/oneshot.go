package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/malgorzata-bondini/offerings-app/internal"
)

var ErrUnsupportedInput = errors.New("unsupported input type")

// ReadInput reads a candidate source by file extension: .xlsx, .eml, .html.
func ReadInput(path string, opts ReadOptions) (Input, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Input{}, err
	}
	name := filepath.Base(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadWorkbook(name, blob, opts)
	case ".eml":
		return ReadEML(name, blob, opts)
	case ".html", ".htm":
		records, err := ReadHTMLTable(name, string(blob))
		if err != nil {
			return Input{}, err
		}
		return Input{Name: name, Records: records, Existing: namesOf(records)}, nil
	default:
		return Input{}, fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
	}
}

// ReadExistingFile reads offering names from a catalog export. Plain text
// files hold one name per line.
func ReadExistingFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		blob, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, line := range strings.Split(strings.ReplaceAll(string(blob), "\r\n", "\n"), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out, nil
	case ".xlsx":
		blob, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ExistingNames(blob)
	default:
		in, err := ReadInput(path, ReadOptions{IncludeLevel2: true})
		if err != nil {
			return nil, err
		}
		return in.Existing, nil
	}
}

func namesOf(records []internal.CandidateRecord) []string {
	var out []string
	for _, r := range records {
		if name := r.Value(internal.ColName); name != "" {
			out = append(out, name)
		}
	}
	return out
}
