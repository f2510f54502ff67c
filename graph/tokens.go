package graph

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// An Element is anything that can be created by tag and serialized as a whitespace separated
// token stream: vertices, edges and user data payloads.
type Element interface {
	// Read parses the element's payload from the token stream.
	Read(tok *Tokens) error
	// Write emits the payload as space separated tokens without a trailing newline.
	Write(w io.Writer) error
}

// Tokens is a cursor over whitespace separated fields of one record.
type Tokens struct {
	fields []string
	pos    int
}

// NewTokens splits s on whitespace.
func NewTokens(s string) *Tokens {
	return &Tokens{fields: strings.Fields(s)}
}

// NewTokensFromFields wraps already split fields.
func NewTokensFromFields(fields []string) *Tokens {
	return &Tokens{fields: fields}
}

// Remaining returns how many tokens are left.
func (t *Tokens) Remaining() int {
	return len(t.fields) - t.pos
}

// Next returns the next raw token.
func (t *Tokens) Next() (string, error) {
	if t.pos >= len(t.fields) {
		return "", ErrShortRecord
	}
	s := t.fields[t.pos]
	t.pos++
	return s, nil
}

// Int parses the next token as an integer.
func (t *Tokens) Int() (int, error) {
	s, err := t.Next()
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "token %d", t.pos-1)
	}
	return i, nil
}

// Float parses the next token as a float64.
func (t *Tokens) Float() (float64, error) {
	s, err := t.Next()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "token %d", t.pos-1)
	}
	return f, nil
}

// Floats parses the next n tokens as float64s.
func (t *Tokens) Floats(n int) ([]float64, error) {
	if t.Remaining() < n {
		return nil, errors.Wrapf(ErrShortRecord, "need %d numbers, have %d", n, t.Remaining())
	}
	out := make([]float64, n)
	for i := range out {
		f, err := t.Float()
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// FormatFloat renders x with the fewest digits that parse back to exactly x.
func FormatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// WriteFloats writes the values separated by single spaces.
func WriteFloats(w io.Writer, vals ...float64) error {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = FormatFloat(v)
	}
	_, err := io.WriteString(w, strings.Join(parts, " "))
	return err
}

// UpperTriangle returns the row-major upper triangle (diagonal included) of a symmetric matrix.
func UpperTriangle(m mat.Symmetric) []float64 {
	n := m.SymmetricDim()
	out := make([]float64, 0, n*(n+1)/2)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

// ReadInformation fills a symmetric matrix of dimension n from its row-major upper triangle.
func ReadInformation(t *Tokens, n int) (*mat.SymDense, error) {
	vals, err := t.Floats(n * (n + 1) / 2)
	if err != nil {
		return nil, errors.Wrap(err, "information matrix")
	}
	info := mat.NewSymDense(n, nil)
	k := 0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			info.SetSym(i, j, vals[k])
			k++
		}
	}
	return info, nil
}
