package stage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Adjacency is a binary directed adjacency matrix over the stages of a
// suite, with a sorted stage order so the artifact is stable across runs.
type Adjacency struct {
	GeneratedAt string         `json:"generatedAt"`
	Suite       string         `json:"suite"`
	StageOrder  []string       `json:"stageOrder"`
	StageIndex  map[string]int `json:"stageToIndex"`
	Edges       []Edge         `json:"edges"`
	Matrix      [][]int        `json:"matrix"`
	EdgeCount   int            `json:"edgeCount"`
	StageCount  int            `json:"stageCount"`
}

// Edge is one directed dependency: Source must run before Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// BuildAdjacency derives the adjacency artifact from a suite's depends_on
// declarations. Edges referencing undefined stages are an error.
func BuildAdjacency(s *Suite) (*Adjacency, error) {
	defined := make(map[string]bool)
	for _, st := range s.Stages {
		defined[st.ID] = true
	}

	edgeSet := make(map[Edge]bool)
	for _, st := range s.Stages {
		for _, dep := range st.DependsOn {
			if !defined[dep] {
				return nil, fmt.Errorf("edge %s->%s references undefined stage '%s'", dep, st.ID, dep)
			}
			edgeSet[Edge{Source: dep, Target: st.ID}] = true
		}
	}

	order := s.StageIDs()
	sort.Strings(order)

	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}

	matrix := make([][]int, len(order))
	for i, src := range order {
		matrix[i] = make([]int, len(order))
		for j, dst := range order {
			if edgeSet[Edge{Source: src, Target: dst}] {
				matrix[i][j] = 1
			}
		}
	}

	edges := make([]Edge, 0, len(edgeSet))
	for e := range edgeSet {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	return &Adjacency{
		GeneratedAt: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Suite:       s.Name,
		StageOrder:  order,
		StageIndex:  index,
		Edges:       edges,
		Matrix:      matrix,
		EdgeCount:   len(edges),
		StageCount:  len(order),
	}, nil
}

// WriteJSON persists the adjacency artifact as indented JSON.
func (a *Adjacency) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal adjacency: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WriteCSV persists the matrix as a CSV with a leading stage-name column.
func (a *Adjacency) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"stage"}, a.StageOrder...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, id := range a.StageOrder {
		row := make([]string, 0, len(a.StageOrder)+1)
		row = append(row, id)
		for _, v := range a.Matrix[i] {
			row = append(row, strconv.Itoa(v))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
