package feed

import (
	"bufio"
	"os"

	"github.com/pkg/errors"
)

// ReadManifest reads the shard manifest at path: one shard path per
// whitespace-delimited token. The returned order is the manifest order and
// is immutable for the lifetime of the run; visiting order is decided by the
// file permutation, never by editing this list.
//
// A manifest that cannot be opened or that lists no shards is an error; a
// run cannot start without at least one shard.
func ReadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest %s", path)
	}
	defer f.Close()

	var shards []string
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		shards = append(shards, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	if len(shards) == 0 {
		return nil, errors.Errorf("manifest %s lists no shard files", path)
	}
	return shards, nil
}
