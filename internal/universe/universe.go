// Package universe loads the set of ticker symbols a command operates
// on, from a local CSV file or a CSV served over HTTP.
package universe

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// maxBodySize caps how much of a remote universe file is read.
const maxBodySize = 10 << 20

// Load reads ticker symbols from the given source. A source starting
// with http:// or https:// is fetched over the network; anything else is
// treated as a file path. The CSV must carry a `symbol` header column;
// extra columns are ignored. Symbols are upper-cased, de-duplicated, and
// returned in file order.
func Load(ctx context.Context, source string) ([]string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return loadURL(ctx, source)
	}

	return loadFile(source)
}

func loadFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeUniverseLoadFailed, err, "failed to open universe file %s", path)
	}
	defer file.Close()

	symbols, err := parse(file)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeUniverseLoadFailed, err, "failed to parse universe file %s", path)
	}

	return symbols, nil
}

func loadURL(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeUniverseLoadFailed, err, "failed to build universe request for %s", url)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeUniverseLoadFailed, err, "failed to fetch universe from %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeUniverseLoadFailed, "unexpected status %d fetching universe from %s", resp.StatusCode, url)
	}

	symbols, err := parse(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeUniverseLoadFailed, err, "failed to parse universe from %s", url)
	}

	return symbols, nil
}

// parse reads the CSV and extracts the symbol column. The header row is
// matched case-insensitively.
func parse(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Ragged rows are common in hand-maintained ticker lists.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeUniverseLoadFailed, "universe file is empty")
	}

	if err != nil {
		return nil, err
	}

	symbolIndex := -1

	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "symbol") {
			symbolIndex = i

			break
		}
	}

	if symbolIndex == -1 {
		return nil, errors.New(errors.ErrCodeUniverseLoadFailed, "universe file has no symbol column")
	}

	seen := make(map[string]bool)

	var symbols []string

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		if symbolIndex >= len(record) {
			continue
		}

		symbol := strings.ToUpper(strings.TrimSpace(record[symbolIndex]))
		if symbol == "" || seen[symbol] {
			continue
		}

		seen[symbol] = true

		symbols = append(symbols, symbol)
	}

	if len(symbols) == 0 {
		return nil, errors.New(errors.ErrCodeUniverseLoadFailed, "universe contains no symbols")
	}

	return symbols, nil
}
