// Package graphio reads and writes graphs in the line oriented g2o text format.
//
// Each record is one line: a registered tag, the vertex id (vertices) or the referenced ids
// (edges, prefixed with their count for multi edges), then the element payload. A "FIX" record
// lists ids of vertices to hold constant. Text after '#' is ignored.
package graphio

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/registry"
)

// TagFix marks the record listing fixed vertices.
const TagFix = "FIX"

const maxLineSize = 1 << 20

// ReadReport summarizes what Read added to the graph and what it skipped.
type ReadReport struct {
	Vertices int
	Edges    int
	Fixed    int
	// UnknownTags counts the records skipped because their tag is not registered.
	UnknownTags map[string]int
	// DroppedEdges counts edge records referencing vertices absent from the graph.
	DroppedEdges int
}

// Skipped returns the number of records that were not loaded.
func (r *ReadReport) Skipped() int {
	return r.DroppedEdges + lo.Sum(lo.Values(r.UnknownTags))
}

// Read parses records from r into g. Unknown tags and edges whose vertices are missing are
// skipped with a warning; any other malformed record stops the read with an error naming its
// line. Records read before the error stay in g.
func Read(r io.Reader, g *graph.Graph, reg *registry.Registry, logger golog.Logger) (*ReadReport, error) {
	report := &ReadReport{UnknownTags: map[string]int{}}
	var fixed []int
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		tag := fields[0]
		tok := graph.NewTokensFromFields(fields[1:])

		if tag == TagFix {
			for tok.Remaining() > 0 {
				id, err := tok.Int()
				if err != nil {
					return report, errors.Wrapf(err, "line %d", lineNum)
				}
				fixed = append(fixed, id)
			}
			continue
		}

		elem, err := reg.Create(tag)
		if err != nil {
			if errors.Is(err, registry.ErrTagNotFound) {
				if report.UnknownTags[tag] == 0 {
					logger.Warnw("skipping records with unknown tag", "tag", tag, "line", lineNum)
				}
				report.UnknownTags[tag]++
				continue
			}
			return report, errors.Wrapf(err, "line %d", lineNum)
		}

		switch elem := elem.(type) {
		case graph.Vertex:
			if err := readVertex(elem, tok, g); err != nil {
				return report, errors.Wrapf(err, "line %d: %s", lineNum, tag)
			}
			report.Vertices++
		case graph.Edge:
			added, err := readEdge(elem, tok, g)
			if err != nil {
				return report, errors.Wrapf(err, "line %d: %s", lineNum, tag)
			}
			if !added {
				logger.Warnw("dropping edge with missing vertices", "tag", tag, "line", lineNum, "vertices", elem.Vertices())
				report.DroppedEdges++
				continue
			}
			report.Edges++
		default:
			return report, errors.Errorf("line %d: tag %q creates %T which is neither a vertex nor an edge", lineNum, tag, elem)
		}
		if tok.Remaining() > 0 {
			logger.Debugw("ignoring trailing tokens", "line", lineNum, "count", tok.Remaining())
		}
	}
	if err := scanner.Err(); err != nil {
		return report, errors.Wrapf(err, "after line %d", lineNum)
	}

	for _, id := range lo.Uniq(fixed) {
		if err := g.SetFixed(id, true); err != nil {
			logger.Warnw("cannot fix missing vertex", "id", id)
			continue
		}
		report.Fixed++
	}
	return report, nil
}

func readVertex(v graph.Vertex, tok *graph.Tokens, g *graph.Graph) error {
	id, err := tok.Int()
	if err != nil {
		return errors.Wrap(err, "vertex id")
	}
	v.SetID(id)
	if err := v.Read(tok); err != nil {
		return err
	}
	return g.AddVertex(v)
}

func readEdge(e graph.Edge, tok *graph.Tokens, g *graph.Graph) (bool, error) {
	n := len(e.VertexDimensions())
	if e.Multi() {
		count, err := tok.Int()
		if err != nil {
			return false, errors.Wrap(err, "vertex count")
		}
		if count < 1 {
			return false, errors.Wrapf(graph.ErrArity, "vertex count %d", count)
		}
		if count > tok.Remaining() {
			return false, errors.Wrapf(graph.ErrShortRecord, "vertex count %d with %d tokens left", count, tok.Remaining())
		}
		n = count
	}
	ids := make([]int, n)
	for i := range ids {
		id, err := tok.Int()
		if err != nil {
			return false, errors.Wrap(err, "vertex ids")
		}
		ids[i] = id
	}
	e.SetVertices(ids...)
	if err := e.Read(tok); err != nil {
		return false, err
	}
	dims := e.VertexDimensions()
	for i, id := range ids {
		v := g.Vertex(id)
		if v == nil {
			return false, nil
		}
		// the graph treats this as a programming error; in a file it is bad input
		if dims[i] != 0 && dims[i] != v.Dimension() {
			return false, graph.NewDimensionMismatchError(i, dims[i], v.Dimension())
		}
	}
	return true, g.AddEdge(e)
}

// Write emits every vertex by increasing id, a FIX record for the fixed ones, then every edge in
// insertion order.
func Write(w io.Writer, g *graph.Graph, reg *registry.Registry) error {
	bw := bufio.NewWriter(w)
	var payload bytes.Buffer
	emit := func(elem graph.Element, ids []string) error {
		tag, ok := reg.Tag(elem)
		if !ok {
			return errors.Errorf("no tag registered for %T", elem)
		}
		payload.Reset()
		if err := elem.Write(&payload); err != nil {
			return errors.Wrapf(err, "writing %s", tag)
		}
		fields := append([]string{tag}, ids...)
		if payload.Len() > 0 {
			fields = append(fields, payload.String())
		}
		_, err := bw.WriteString(strings.Join(fields, " ") + "\n")
		return err
	}

	vertices := g.Vertices()
	for _, v := range vertices {
		if err := emit(v, []string{strconv.Itoa(v.ID())}); err != nil {
			return err
		}
	}
	fixed := lo.FilterMap(vertices, func(v graph.Vertex, _ int) (string, bool) {
		return strconv.Itoa(v.ID()), v.Fixed()
	})
	if len(fixed) > 0 {
		if _, err := bw.WriteString(TagFix + " " + strings.Join(fixed, " ") + "\n"); err != nil {
			return err
		}
	}
	for _, e := range g.Edges() {
		ids := lo.Map(e.Vertices(), func(id, _ int) string { return strconv.Itoa(id) })
		if e.Multi() {
			ids = append([]string{strconv.Itoa(len(ids))}, ids...)
		}
		if err := emit(e, ids); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string, g *graph.Graph, reg *registry.Registry, logger golog.Logger) (*ReadReport, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return Read(f, g, reg, logger)
}

// WriteFile creates path and writes g to it.
func WriteFile(path string, g *graph.Graph, reg *registry.Registry) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return Write(f, g, reg)
}

// UnknownTagNames returns the skipped tags sorted by name.
func (r *ReadReport) UnknownTagNames() []string {
	tags := lo.Keys(r.UnknownTags)
	sort.Strings(tags)
	return tags
}
