// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/bulkscan/lib/codec"
)

// Format is a report encoding.
type Format int

const (
	XML Format = iota
	CBOR
)

func (f Format) String() string {
	switch f {
	case XML:
		return "xml"
	case CBOR:
		return "cbor"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat parses "xml" or "cbor".
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "xml":
		return XML, nil
	case "cbor":
		return CBOR, nil
	default:
		return 0, fmt.Errorf("unknown report format %q (supported: xml, cbor)", name)
	}
}

// FormatForPath picks CBOR for ".cbor" files and XML otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		return CBOR
	}
	return XML
}

// Attr is a name/value attribute on a report node.
type Attr struct {
	Key   string `cbor:"k"`
	Value string `cbor:"v"`
}

// A returns an attribute with value formatted by fmt.Sprint.
func A(key string, value any) Attr {
	return Attr{Key: key, Value: fmt.Sprint(value)}
}

// Node is one element of the report tree.
type Node struct {
	Name       string  `cbor:"name,omitempty"`
	Value      string  `cbor:"value,omitempty"`
	Attributes []Attr  `cbor:"attrs,omitempty"`
	Comment    bool    `cbor:"comment,omitempty"`
	Children   []*Node `cbor:"children,omitempty"`

	// raw values are written to XML unescaped.
	raw bool
}

// Attribute returns the value of the attribute named key.
func (n *Node) Attribute(key string) (string, bool) {
	for _, attribute := range n.Attributes {
		if attribute.Key == key {
			return attribute.Value, true
		}
	}
	return "", false
}

// Child returns the first child named name.
func (n *Node) Child(name string) *Node {
	for _, child := range n.Children {
		if !child.Comment && child.Name == name {
			return child
		}
	}
	return nil
}

// ChildrenNamed returns every child named name.
func (n *Node) ChildrenNamed(name string) []*Node {
	var matches []*Node
	for _, child := range n.Children {
		if !child.Comment && child.Name == name {
			matches = append(matches, child)
		}
	}
	return matches
}

// Writer accumulates a report tree.
type Writer struct {
	mu     sync.Mutex
	root   *Node
	stack  []*Node
	path   string
	format Format
}

// New returns a Writer whose document element is named root. If path
// is non-empty, Flush writes the report there.
func New(root, path string, format Format, attributes ...Attr) *Writer {
	node := &Node{Name: root, Attributes: attributes}
	return &Writer{root: node, stack: []*Node{node}, path: path, format: format}
}

// Push opens a section as a child of the current one.
func (w *Writer) Push(name string, attributes ...Attr) {
	w.mu.Lock()
	defer w.mu.Unlock()
	node := &Node{Name: name, Attributes: attributes}
	w.appendLocked(node)
	w.stack = append(w.stack, node)
}

// Pop closes the current section. Popping the document element is an
// error.
func (w *Writer) Pop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.stack) <= 1 {
		return errors.New("report: Pop without matching Push")
	}
	w.stack = w.stack[:len(w.stack)-1]
	return nil
}

// Emit adds a leaf entry to the current section. When escape is false
// the value is written to XML verbatim and must already be well-formed.
func (w *Writer) Emit(name, value string, escape bool, attributes ...Attr) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appendLocked(&Node{Name: name, Value: value, Attributes: attributes, raw: !escape})
}

// Comment adds a free-text note to the current section.
func (w *Writer) Comment(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appendLocked(&Node{Value: text, Comment: true})
}

func (w *Writer) appendLocked(node *Node) {
	current := w.stack[len(w.stack)-1]
	current.Children = append(current.Children, node)
}

// Depth returns the number of open sections below the document element.
func (w *Writer) Depth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stack) - 1
}

// Document returns a deep copy of the report tree.
func (w *Writer) Document() *Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneNode(w.root)
}

func cloneNode(node *Node) *Node {
	copied := *node
	copied.Attributes = append([]Attr(nil), node.Attributes...)
	copied.Children = make([]*Node, len(node.Children))
	for i, child := range node.Children {
		copied.Children[i] = cloneNode(child)
	}
	return &copied
}

// Encode writes the report to out in format.
func (w *Writer) Encode(out io.Writer, format Format) error {
	document := w.Document()
	switch format {
	case XML:
		return encodeXML(out, document)
	case CBOR:
		data, err := codec.Marshal(document)
		if err != nil {
			return fmt.Errorf("encoding report as CBOR: %w", err)
		}
		_, err = out.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported report format %v", format)
	}
}

// Flush replaces the report file with the current tree. Without a
// path Flush does nothing.
func (w *Writer) Flush() error {
	if w.path == "" {
		return nil
	}
	return writeAtomic(w.path, func(out io.Writer) error {
		return w.Encode(out, w.format)
	})
}

// writeAtomic writes through a temporary file in the target directory,
// fsyncs it, and renames it over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary report file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary report file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary report file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary report file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming report file into place: %w", err)
	}
	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}
