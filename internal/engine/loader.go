package engine

import (
	"bytes"
	"os"
	"runtime"
	"strings"
	"time"

	"datavista/internal/models"

	"github.com/goccy/go-json"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrNoColumns is returned when a CSV header names none of the sales fields.
var ErrNoColumns = errors.New("no known columns in header")

// LoadFile reads a sales dataset from disk. Files ending in .json are decoded
// as JSON, everything else as CSV.
func LoadFile(path string) ([]models.Record, error) {
	start := time.Now()
	log.Infof("Loading data from %s...", path)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	var records []models.Record
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		records, err = ParseJSON(content)
	} else {
		records, err = ParseCSV(content)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	log.Infof("Load complete. Rows: %d. Time: %v", len(records), time.Since(start))
	return records, nil
}

// ParseJSON decodes an array of records or a single record object.
func ParseJSON(content []byte) ([]models.Record, error) {
	content = bytes.TrimSpace(content)
	if len(content) > 0 && content[0] == '{' {
		var r models.Record
		if err := json.Unmarshal(content, &r); err != nil {
			return nil, errors.Wrap(err, "decoding record")
		}
		return []models.Record{r}, nil
	}
	var records []models.Record
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, errors.Wrap(err, "decoding records")
	}
	return records, nil
}

// ParseCSV parses a headered sales CSV. Fields are split on commas with no
// quote handling; unknown header columns are skipped. The body is cut into
// newline-aligned chunks that are parsed in parallel and stitched back in
// file order.
func ParseCSV(content []byte) ([]models.Record, error) {
	// A. Header
	header, body, _ := bytes.Cut(content, []byte{'\n'})
	columns, names := mapHeader(header)
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}

	// B. Chunk bounds, aligned to newlines
	numWorkers := runtime.NumCPU()
	bounds := chunkBounds(body, numWorkers)
	chunks := len(bounds) - 1

	// C. Count lines per chunk so errors can report absolute line numbers
	lineCounts := make([]int, chunks)
	var counts errgroup.Group
	for i := 0; i < chunks; i++ {
		counts.Go(func() error {
			lineCounts[i] = bytes.Count(body[bounds[i]:bounds[i+1]], []byte{'\n'})
			return nil
		})
	}
	_ = counts.Wait()

	firstLine := make([]int, chunks)
	line := 2 // header is line 1
	for i, c := range lineCounts {
		firstLine[i] = line
		line += c
	}

	// D. Parallel parsing
	parts := make([][]models.Record, chunks)
	var g errgroup.Group
	for i := 0; i < chunks; i++ {
		g.Go(func() error {
			recs, err := parseChunk(body[bounds[i]:bounds[i+1]], firstLine[i], columns, names)
			parts[i] = recs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// E. Merge in order
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	records := make([]models.Record, 0, total)
	for _, p := range parts {
		records = append(records, p...)
	}
	return records, nil
}

// mapHeader returns the Field for every header position (-1 when unknown)
// plus the trimmed header names. columns is nil if no position is known.
func mapHeader(header []byte) ([]Field, []string) {
	header = bytes.TrimRight(header, "\r")
	var columns []Field
	var names []string
	known := false
	for _, h := range strings.Split(string(header), ",") {
		name := strings.TrimSpace(h)
		f, ok := ParseField(name)
		if !ok {
			f = -1
		} else {
			known = true
		}
		columns = append(columns, f)
		names = append(names, name)
	}
	if !known {
		return nil, nil
	}
	return columns, names
}

// chunkBounds splits content into at most n ranges whose boundaries sit just
// after a newline. The returned slice has one more entry than there are chunks.
func chunkBounds(content []byte, n int) []int {
	if n < 1 {
		n = 1
	}
	size := len(content) / n
	bounds := []int{0}
	for i := 1; i < n && size > 0; i++ {
		pos := i * size
		if pos <= bounds[len(bounds)-1] {
			continue
		}
		j := bytes.IndexByte(content[pos:], '\n')
		if j == -1 {
			break
		}
		pos += j + 1
		if pos >= len(content) {
			break
		}
		if pos > bounds[len(bounds)-1] {
			bounds = append(bounds, pos)
		}
	}
	return append(bounds, len(content))
}

func parseChunk(chunk []byte, lineNo int, columns []Field, names []string) ([]models.Record, error) {
	var records []models.Record
	sep := []byte{','}

	for pos := 0; pos < len(chunk); lineNo++ {
		end := len(chunk)
		if i := bytes.IndexByte(chunk[pos:], '\n'); i != -1 {
			end = pos + i
		}
		line := bytes.TrimRight(chunk[pos:end], "\r")
		pos = end + 1

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var r models.Record
		rest := line
		for col := 0; col < len(columns); col++ {
			field, tail, found := bytes.Cut(rest, sep)
			rest = tail
			if f := columns[col]; f >= 0 {
				raw := strings.TrimSpace(string(field))
				if f == FieldSales && raw == "" {
					raw = "0"
				}
				if err := f.set(&r, raw); err != nil {
					return nil, errors.Wrapf(err, "line %d: column %q", lineNo, names[col])
				}
			}
			if !found {
				break
			}
		}
		records = append(records, r)
	}
	return records, nil
}
