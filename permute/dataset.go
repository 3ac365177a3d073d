package permute

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/wext"
	"github.com/carbocation/wext/mutation"
	"google.golang.org/api/iterator"
)

// Dataset is one permuted alteration dataset.
type Dataset struct {
	Index       int                    `json:"permutation_number"`
	Seed        uint64                 `json:"seed"`
	GeneToCases map[string][]string    `json:"geneToCases"`
	Params      map[string]interface{} `json:"params,omitempty"`
}

// Cases converts the on-disk lists into patient sets.
func (d Dataset) Cases() mutation.GeneCases {
	return mutation.GeneCasesFromLists(d.GeneToCases)
}

var datasetFilePattern = regexp.MustCompile(`^permuted-mutations-(\d+)\.json$`)

// FileName is the name under which permutation index is stored.
func FileName(index int) string {
	return fmt.Sprintf("permuted-mutations-%d.json", index)
}

// WriteDataset stores d as JSON in dir, which may be a gs:// prefix.
func WriteDataset(ctx context.Context, client *storage.Client, dir string, d Dataset) error {
	w, err := wext.MaybeCreateInGoogleStorage(ctx, wext.JoinPath(dir, FileName(d.Index)), client)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(d); err != nil {
		w.Close()
		return pfx.Err(err)
	}

	if err := w.Close(); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// ReadDataset loads one permuted dataset file.
func ReadDataset(ctx context.Context, client *storage.Client, p string) (Dataset, error) {
	var d Dataset

	r, err := wext.MaybeOpenFromGoogleStorage(ctx, p, client)
	if err != nil {
		return d, err
	}
	defer r.Close()

	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return d, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}

	return d, nil
}

// ReadGroup loads several permuted dataset files that together describe one
// permutation (for example, one file per alteration type) and unions their
// gene->patients mappings.
func ReadGroup(ctx context.Context, client *storage.Client, paths []string) (mutation.GeneCases, error) {
	out := make(mutation.GeneCases)
	for _, p := range paths {
		d, err := ReadDataset(ctx, client, p)
		if err != nil {
			return nil, err
		}
		for gene, cases := range d.GeneToCases {
			if out[gene] == nil {
				out[gene] = make(mutation.Cases, len(cases))
			}
			for _, c := range cases {
				out[gene][c] = struct{}{}
			}
		}
	}

	return out, nil
}

// ListDatasets finds the permuted dataset files in dir, keyed by permutation
// index.
func ListDatasets(ctx context.Context, client *storage.Client, dir string) (map[int]string, error) {
	out := make(map[int]string)

	if client != nil && wext.IsGoogleStoragePath(dir) {
		trimmed := strings.TrimSuffix(strings.TrimPrefix(dir, "gs://"), "/")
		parts := strings.SplitN(trimmed, "/", 2)
		prefix := ""
		if len(parts) == 2 {
			prefix = parts[1] + "/"
		}

		it := client.Bucket(parts[0]).Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				break
			} else if err != nil {
				return nil, pfx.Err(err)
			}
			if index, ok := datasetIndex(path.Base(attrs.Name)); ok {
				out[index] = "gs://" + parts[0] + "/" + attrs.Name
			}
		}

		return out, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "permuted-mutations-*.json"))
	if err != nil {
		return nil, pfx.Err(err)
	}
	for _, m := range matches {
		if index, ok := datasetIndex(filepath.Base(m)); ok {
			out[index] = m
		}
	}

	return out, nil
}

func datasetIndex(name string) (int, bool) {
	match := datasetFilePattern.FindStringSubmatch(name)
	if match == nil {
		return 0, false
	}
	index, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return index, true
}

// GroupDatasets pairs up files from several listings by permutation index.
// Only indices present in every listing are kept, in ascending order.
func GroupDatasets(listings ...map[int]string) [][]string {
	if len(listings) == 0 {
		return nil
	}

	indices := make([]int, 0, len(listings[0]))
Outer:
	for index := range listings[0] {
		for _, l := range listings[1:] {
			if _, ok := l[index]; !ok {
				continue Outer
			}
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)

	out := make([][]string, 0, len(indices))
	for _, index := range indices {
		group := make([]string, 0, len(listings))
		for _, l := range listings {
			group = append(group, l[index])
		}
		out = append(out, group)
	}

	return out
}
