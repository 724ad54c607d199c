package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/sizing"
)

// ErrUnsupportedFormat 지원하지 않는 파일 확장자
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// Load reads a journal file and returns the validated dataset
// 알 수 없는 필드는 즉시 실패 (오타 방지)
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	ds, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	ds.Path = path
	return ds, nil
}

// Parse decodes raw bytes; ext selects the decoder (".json", ".yaml", ".yml")
func Parse(data []byte, ext string) (*Dataset, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := Validate(&f); err != nil {
		return nil, err
	}
	return build(&f, Checksum(data)), nil
}

// Checksum SHA256 hex of the raw file bytes
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func build(f *File, checksum string) *Dataset {
	ds := &Dataset{
		Checksum:       checksum,
		DefaultCapital: f.DefaultCapital,
		CapitalChanges: f.CapitalChanges,
		Benchmark:      f.Benchmark,
		Trades:         make([]contracts.Trade, 0, len(f.Trades)),
	}
	if len(f.MonthlySizes) > 0 {
		ds.MonthlySizes = make(sizing.MonthlySizes, len(f.MonthlySizes))
		for k, v := range f.MonthlySizes {
			ds.MonthlySizes[k] = v
		}
	}
	for i, r := range f.Trades {
		t := r.trade()
		if t.ID == "" {
			t.ID = fmt.Sprintf("T%03d", i+1)
		}
		ds.Trades = append(ds.Trades, t)
	}
	return ds
}
