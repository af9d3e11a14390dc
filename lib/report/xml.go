// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bufio"
	"encoding/xml"
	"io"
	"strings"
)

func encodeXML(out io.Writer, document *Node) error {
	writer := bufio.NewWriter(out)
	writer.WriteString("<?xml version='1.0' encoding='UTF-8'?>\n")
	writeNode(writer, document, 0)
	return writer.Flush()
}

func writeNode(writer *bufio.Writer, node *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	if node.Comment {
		writer.WriteString(indent)
		writer.WriteString("<!-- ")
		// "--" may not appear inside an XML comment.
		writer.WriteString(strings.ReplaceAll(node.Value, "--", "- -"))
		writer.WriteString(" -->\n")
		return
	}

	writer.WriteString(indent)
	writer.WriteByte('<')
	writer.WriteString(node.Name)
	for _, attribute := range node.Attributes {
		writer.WriteByte(' ')
		writer.WriteString(attribute.Key)
		writer.WriteString("='")
		xml.EscapeText(writer, []byte(attribute.Value))
		writer.WriteByte('\'')
	}

	switch {
	case len(node.Children) > 0:
		writer.WriteString(">\n")
		for _, child := range node.Children {
			writeNode(writer, child, depth+1)
		}
		writer.WriteString(indent)
	case node.Value == "":
		writer.WriteString("/>\n")
		return
	default:
		writer.WriteByte('>')
		if node.raw {
			writer.WriteString(node.Value)
		} else {
			xml.EscapeText(writer, []byte(node.Value))
		}
	}
	writer.WriteString("</")
	writer.WriteString(node.Name)
	writer.WriteString(">\n")
}
