package tree

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// FileName is the tree file inside a model directory.
const FileName = "tree.bin"

var byteOrder = binary.LittleEndian

// maxPrealloc caps allocations sized by counts read from a file.
const maxPrealloc = 1 << 16

// Save writes the node count, the label count and then one record per node
// in index order: index, label, parent, child count, children. All values
// are little-endian int32; Sentinel is written as -1.
func (t *Tree) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	put := func(v int) error {
		return binary.Write(bw, byteOrder, int32(v))
	}

	if err := put(len(t.nodes)); err != nil {
		return errors.Wrap(err, "failed to write tree header")
	}
	if err := put(t.k); err != nil {
		return errors.Wrap(err, "failed to write tree header")
	}
	for _, n := range t.nodes {
		for _, v := range []int{n.Index, n.Label, n.Parent, len(n.Children)} {
			if err := put(v); err != nil {
				return errors.Wrapf(err, "failed to write node %d", n.Index)
			}
		}
		for _, c := range n.Children {
			if err := put(c); err != nil {
				return errors.Wrapf(err, "failed to write node %d", n.Index)
			}
		}
	}
	return errors.Wrap(bw.Flush(), "failed to flush tree")
}

// Load reads a tree written by Save and validates it. On any error no tree
// is returned.
func Load(r io.Reader) (*Tree, error) {
	const op = "tree.Load"
	br := bufio.NewReader(r)
	get := func(what string) (int, error) {
		var v int32
		if err := binary.Read(br, byteOrder, &v); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, errors.NewStructuralError(op, "truncated input reading %s", what)
			}
			return 0, errors.Wrapf(err, "failed to read %s", what)
		}
		return int(v), nil
	}

	size, err := get("node count")
	if err != nil {
		return nil, err
	}
	k, err := get("label count")
	if err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, errors.NewStructuralError(op, "node count %d", size)
	}
	if k < 1 || k > size {
		return nil, errors.NewStructuralError(op, "label count %d for %d nodes", k, size)
	}

	t := &Tree{leaves: make(map[int]int), root: Sentinel, k: k}
	for i := 0; i < size; i++ {
		var rec [4]int
		for j, what := range []string{"node index", "node label", "node parent", "child count"} {
			if rec[j], err = get(what); err != nil {
				return nil, errors.Wrapf(err, "node %d", i)
			}
		}
		index, label, parent, childCount := rec[0], rec[1], rec[2], rec[3]
		if index != i {
			return nil, errors.NewStructuralError(op, "record %d has index %d", i, index)
		}
		if childCount < 0 || childCount >= size {
			return nil, errors.NewStructuralError(op, "node %d has child count %d", i, childCount)
		}

		n := &Node{Index: index, Label: label, Parent: parent}
		if childCount > 0 {
			n.Children = make([]int, 0, min(childCount, maxPrealloc))
			for c := 0; c < childCount; c++ {
				child, err := get("child index")
				if err != nil {
					return nil, errors.Wrapf(err, "node %d", i)
				}
				n.Children = append(n.Children, child)
			}
		}
		if parent == Sentinel {
			t.root = i
		}
		if label != Sentinel {
			if _, dup := t.leaves[label]; dup {
				return nil, errors.NewStructuralError(op, "label %d appears on more than one node", label)
			}
			t.leaves[label] = i
		}
		t.nodes = append(t.nodes, n)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveFile writes the tree to path atomically, creating missing parent
// directories.
func (t *Tree) SaveFile(path string) error {
	return model.WriteFileAtomic(path, t.Save)
}

// LoadFile reads a tree from path.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	t, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return t, nil
}
