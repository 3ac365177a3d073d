// Package mutation holds the observed alteration data and builds contingency
// tables for gene sets.
package mutation

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/wext"
	"github.com/carbocation/wext/bipartite"
)

// Cases is a set of patient labels.
type Cases map[string]struct{}

// GeneCases maps each gene to the patients in which it is altered.
type GeneCases map[string]Cases

// Count returns the number of patients altered in gene.
func (gc GeneCases) Count(gene string) int {
	return len(gc[gene])
}

// Lists returns the mapping with sorted patient lists as values, which is the
// on-disk representation.
func (gc GeneCases) Lists() map[string][]string {
	out := make(map[string][]string, len(gc))
	for gene, cases := range gc {
		list := make([]string, 0, len(cases))
		for p := range cases {
			list = append(list, p)
		}
		sort.Strings(list)
		out[gene] = list
	}
	return out
}

// GeneCasesFromLists is the inverse of Lists. Patients listed twice collapse
// into one alteration.
func GeneCasesFromLists(lists map[string][]string) GeneCases {
	out := make(GeneCases, len(lists))
	for gene, list := range lists {
		out.add(gene, list...)
	}
	return out
}

func (gc GeneCases) add(gene string, patients ...string) {
	cases, exists := gc[gene]
	if !exists {
		cases = make(Cases, len(patients))
		gc[gene] = cases
	}
	for _, p := range patients {
		cases[p] = struct{}{}
	}
}

// Dataset is the observed alteration relation. Genes and Patients keep the
// order in which they were first seen; that order fixes the rows and columns
// of every weight matrix derived from the dataset.
type Dataset struct {
	Genes              []string
	Patients           []string
	GeneToCases        GeneCases
	PatientToMutations map[string]map[string]struct{}

	// TestGenes are the genes altered in at least MinFreq patients, in the
	// same order as Genes.
	TestGenes []string

	// Params is passthrough metadata echoed into outputs.
	Params map[string]interface{}
}

const sniffBytes = 64 * 1024

// LoadOptions controls Load.
type LoadOptions struct {
	// MinFreq is the minimum number of altered patients for a gene to be
	// eligible for testing. Every gene still enters the weight matrix.
	MinFreq int

	// PatientWhitelist and GeneWhitelist restrict the dataset if non-nil.
	PatientWhitelist map[string]struct{}
	GeneWhitelist    map[string]struct{}

	// DetectDelimiter sniffs the delimiter instead of assuming tabs.
	DetectDelimiter bool
}

// Load parses a mutation file: one line per patient, the patient label
// followed by the labels of its altered genes. Lines starting with # are
// comments. A patient line with no genes still counts the patient. The input
// may be compressed.
func Load(r io.Reader, opts LoadOptions) (*Dataset, error) {
	rdr, err := wext.MaybeDecompressReader(r)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rdr.Close()

	br := bufio.NewReaderSize(rdr, sniffBytes)

	delim := '\t'
	if opts.DetectDelimiter {
		sample, err := br.Peek(sniffBytes)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, pfx.Err(err)
		}
		delim = wext.DetermineDelimiter(dropComments(sample))
	}

	d := &Dataset{
		GeneToCases:        make(GeneCases),
		PatientToMutations: make(map[string]map[string]struct{}),
		Params: map[string]interface{}{
			"min_freq": opts.MinFreq,
		},
	}
	seenGene := make(map[string]struct{})

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, string(delim))
		patient := strings.TrimSpace(fields[0])
		if patient == "" {
			return nil, fmt.Errorf("Line %d: empty patient label", lineNo)
		}
		if opts.PatientWhitelist != nil {
			if _, ok := opts.PatientWhitelist[patient]; !ok {
				continue
			}
		}

		muts, exists := d.PatientToMutations[patient]
		if !exists {
			muts = make(map[string]struct{})
			d.PatientToMutations[patient] = muts
			d.Patients = append(d.Patients, patient)
		}

		for _, field := range fields[1:] {
			gene := strings.TrimSpace(field)
			if gene == "" {
				continue
			}
			if opts.GeneWhitelist != nil {
				if _, ok := opts.GeneWhitelist[gene]; !ok {
					continue
				}
			}

			if _, exists := seenGene[gene]; !exists {
				seenGene[gene] = struct{}{}
				d.Genes = append(d.Genes, gene)
			}
			muts[gene] = struct{}{}
			d.GeneToCases.add(gene, patient)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}

	for _, gene := range d.Genes {
		if d.GeneToCases.Count(gene) >= opts.MinFreq {
			d.TestGenes = append(d.TestGenes, gene)
		}
	}

	return d, nil
}

func dropComments(sample []byte) []byte {
	var out bytes.Buffer
	for _, line := range bytes.Split(sample, []byte("\n")) {
		if bytes.HasPrefix(line, []byte("#")) {
			continue
		}
		out.Write(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// NumPatients is N.
func (d *Dataset) NumPatients() int {
	return len(d.Patients)
}

// Graph builds the bipartite alteration graph along with the gene and patient
// indices that address its vertices.
func (d *Dataset) Graph() (*bipartite.Graph, *bipartite.Index, *bipartite.Index, error) {
	genes, err := bipartite.NewIndex(d.Genes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("Genes: %w", err)
	}
	patients, err := bipartite.NewIndex(d.Patients)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("Patients: %w", err)
	}

	edges := make([]bipartite.Edge, 0)
	for gene, cases := range d.GeneToCases {
		i := genes.Of(gene)
		if i == 0 {
			return nil, nil, nil, fmt.Errorf("Gene %q has alterations but no index", gene)
		}
		for p := range cases {
			j := patients.Of(p)
			if j == 0 {
				return nil, nil, nil, fmt.Errorf("Patient %q is altered in %s but has no index", p, gene)
			}
			edges = append(edges, bipartite.Edge{Gene: i, Patient: j})
		}
	}

	g, err := bipartite.NewGraph(genes.Len(), patients.Len(), edges)
	if err != nil {
		return nil, nil, nil, err
	}

	return g, genes, patients, nil
}
