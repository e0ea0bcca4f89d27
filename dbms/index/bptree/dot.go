package bptree

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"strings"
)

const dotPreviewLen = 6

// WriteDOT renders the tree as a Graphviz digraph: internal nodes show their
// separators, leaves show keys with a preview of their values, and the leaf
// chain is drawn as dashed edges.
func (t *Tree[K, V]) WriteDOT(out io.Writer) error {
	w := bufio.NewWriter(out)

	fmt.Fprintln(w, "digraph BPlusTree {")
	fmt.Fprintln(w, "  graph [ranksep=0.8, nodesep=0.5, bgcolor=\"#ffffff\", rankdir=TB];")
	fmt.Fprintln(w, "  node [shape=none, fontname=\"Helvetica\", fontsize=10];")
	fmt.Fprintln(w, "  edge [arrowsize=0.8, color=\"#444444\"];")

	var leaves []NodeInfo[K]
	err := t.Walk(func(n NodeInfo[K]) error {
		if n.Leaf {
			leaves = append(leaves, n)
			return t.dotLeaf(w, n)
		}
		t.dotInternal(w, n)
		return nil
	})
	if err != nil {
		return err
	}

	// Link leaves horizontally
	if len(leaves) > 1 {
		fmt.Fprintln(w, "  { rank=same;")
		for _, n := range leaves {
			fmt.Fprintf(w, "    node%d;\n", n.ID)
		}
		fmt.Fprintln(w, "  }")
		for _, n := range leaves {
			if n.Next >= 0 {
				fmt.Fprintf(w, "  node%d:next -> node%d [style=dashed, color=\"#03A9F4\", constraint=false, tailclip=false];\n", n.ID, n.Next)
			}
		}
	}

	fmt.Fprintln(w, "}")
	return w.Flush()
}

func (t *Tree[K, V]) dotLabelKey(k K) string {
	return html.EscapeString(t.keys.Encode(k))
}

func (t *Tree[K, V]) dotLeaf(w io.Writer, n NodeInfo[K]) error {
	tokens, err := t.LeafValues(n.ID)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4">
		<TR><TD COLSPAN="2" BGCOLOR="#D5E8D4"><B>NODE %d (LEAF)</B><BR/><FONT POINT-SIZE="8">@%d</FONT></TD></TR>
		<TR><TD PORT="keys" BGCOLOR="#F5F5F5" ALIGN="LEFT">`, n.ID, n.Offset)

	for i, k := range n.Keys {
		preview := ""
		if i < len(tokens) {
			v := tokens[i]
			if len(v) > dotPreviewLen {
				v = v[:dotPreviewLen] + ".."
			}
			preview = fmt.Sprintf(" <FONT COLOR='#666666'>[%s]</FONT>", html.EscapeString(v))
		}
		fmt.Fprintf(&b, "<B>%s</B>%s<BR/>", t.dotLabelKey(k), preview)
	}

	nextLabel := "NULL"
	if n.Next >= 0 {
		nextLabel = fmt.Sprintf("%d", n.Next)
	}
	fmt.Fprintf(&b, `</TD><TD PORT="next" BGCOLOR="#E1F5FE" VALIGN="MIDDLE">Next: %s</TD></TR></TABLE>>`, nextLabel)

	fmt.Fprintf(w, "  node%d [label=%s];\n", n.ID, b.String())
	return nil
}

func (t *Tree[K, V]) dotInternal(w io.Writer, n NodeInfo[K]) {
	var b strings.Builder
	fmt.Fprintf(&b, `<<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4">
		<TR><TD COLSPAN="%d" BGCOLOR="#DAE8FC"><B>NODE %d (INTERNAL)</B></TD></TR><TR>`, len(n.Keys)*2+1, n.ID)

	for i, k := range n.Keys {
		fmt.Fprintf(&b, `<TD PORT="f%d" BGCOLOR="#E1F5FE">P:%d</TD><TD BGCOLOR="#FFFFFF"><B>%s</B></TD>`, i, n.Children[i], t.dotLabelKey(k))
	}
	last := len(n.Keys)
	fmt.Fprintf(&b, `<TD PORT="f%d" BGCOLOR="#E1F5FE">P:%d</TD></TR></TABLE>>`, last, n.Children[last])

	fmt.Fprintf(w, "  node%d [label=%s];\n", n.ID, b.String())
	for i, c := range n.Children {
		fmt.Fprintf(w, "  node%d:f%d -> node%d;\n", n.ID, i, c)
	}
}
