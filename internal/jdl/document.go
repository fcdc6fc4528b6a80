// Package jdl builds the job description documents submitted to the grid.
//
// A Document is an ordered list of key/value(s) fields rendered in the
// line-oriented JDL text format:
//
//	Price = 1;
//	Executable = "/alice/bin/aliroot_new";
//	JDLVariables = {
//		"Packages",
//		"OutputDir"
//	};
//
// Single values are bare when purely numeric and double quoted otherwise;
// multi-value keys render as a brace list.
package jdl

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/accsubmit/internal/errs"
)

// Field is one key of a document.
type Field struct {
	Key    string
	Values []string
}

// Document is an ordered JDL document.
type Document struct {
	Kind   Kind
	Final  bool
	Header []string
	Fields []Field
}

// Add appends a field. The first value is always kept; later empty values
// are dropped.
func (d *Document) Add(key string, first string, more ...string) {
	values := []string{first}
	for _, v := range more {
		if v != "" {
			values = append(values, v)
		}
	}
	d.Fields = append(d.Fields, Field{Key: key, Values: values})
}

// AddList appends a field with an explicit value list.
func (d *Document) AddList(key string, values []string) {
	d.Fields = append(d.Fields, Field{Key: key, Values: append([]string(nil), values...)})
}

// Lookup returns the values of key.
func (d *Document) Lookup(key string) ([]string, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Values, true
		}
	}
	return nil, false
}

// WriteTo renders the document.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, h := range d.Header {
		buf.WriteString("# ")
		buf.WriteString(h)
		buf.WriteByte('\n')
	}
	for _, f := range d.Fields {
		writeField(&buf, f)
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// Bytes returns the rendered document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = d.WriteTo(&buf)
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, f Field) {
	buf.WriteString(f.Key)
	buf.WriteString(" = ")
	switch {
	case len(f.Values) > 1:
		buf.WriteString("{\n")
		for i, v := range f.Values {
			buf.WriteString("\t\"")
			buf.WriteString(v)
			buf.WriteByte('"')
			if i < len(f.Values)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString("}")
	case len(f.Values) == 1:
		buf.WriteString(scalar(f.Values[0]))
	default:
		buf.WriteString(`""`)
	}
	buf.WriteString(";\n")
}

// scalar renders a single value: integers bare, everything else quoted.
func scalar(v string) string {
	if isDigits(v) {
		if n, err := strconv.Atoi(v); err == nil {
			return strconv.Itoa(n)
		}
	}
	return `"` + v + `"`
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}

// Write renders doc into path. When the path exists and overwrite is false
// nothing is written and a Conflict error is returned.
func Write(path string, doc *Document, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errs.New(errs.Conflict,
				"file already exists, remove it if you want to overwrite it").WithPath(path)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
