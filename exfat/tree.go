// Recursive directory navigation over the mounted volume: file entry
// sets are organized into a sorted tree of metadata nodes. Metadata
// only; file content is never read.

package exfat

import (
	"reflect"
	"sort"
	"strings"

	"github.com/dsoprea/go-logging"
)

// TreeNode is one file or directory in the tree.
type TreeNode struct {
	name string

	isDirectory bool
	fde         *FileDirectoryEntry
	sede        *StreamExtensionDirectoryEntry

	childrenFolders sort.StringSlice
	childrenFiles   sort.StringSlice

	childrenMap map[string]*TreeNode
}

// NewTreeNode returns a new TreeNode instance.
func NewTreeNode(name string, isDirectory bool, fde *FileDirectoryEntry, sede *StreamExtensionDirectoryEntry) (tn *TreeNode) {
	return &TreeNode{
		name:        name,
		isDirectory: isDirectory,
		fde:         fde,
		sede:        sede,

		childrenFolders: make(sort.StringSlice, 0),
		childrenFiles:   make(sort.StringSlice, 0),

		childrenMap: make(map[string]*TreeNode),
	}
}

// Name returns the name of the node.
func (tn *TreeNode) Name() string {
	return tn.name
}

// IsDirectory indicates whether the node is a directory.
func (tn *TreeNode) IsDirectory() bool {
	return tn.isDirectory
}

// FileDirectoryEntry returns the primary file entry of the node.
func (tn *TreeNode) FileDirectoryEntry() *FileDirectoryEntry {
	return tn.fde
}

// StreamDirectoryEntry returns the stream-extension entry of the node.
func (tn *TreeNode) StreamDirectoryEntry() *StreamExtensionDirectoryEntry {
	return tn.sede
}

// ChildFolders returns the names of the child directories, sorted.
func (tn *TreeNode) ChildFolders() []string {
	return tn.childrenFolders
}

// ChildFiles returns the names of the child files, sorted.
func (tn *TreeNode) ChildFiles() []string {
	return tn.childrenFiles
}

// GetChild returns the named child node.
func (tn *TreeNode) GetChild(filename string) *TreeNode {
	return tn.childrenMap[filename]
}

// Lookup descends the tree through the given path parts.
func (tn *TreeNode) Lookup(pathParts []string) *TreeNode {
	if len(pathParts) == 0 {
		// We've reached and found the last part.
		return tn
	}

	childNode := tn.childrenMap[pathParts[0]]
	if childNode == nil {
		// An intermediate part was not found.
		return nil
	}

	return childNode.Lookup(pathParts[1:])
}

// AddChild inserts a child node, keeping sibling order deterministic.
func (tn *TreeNode) AddChild(name string, isDirectory bool, fde *FileDirectoryEntry, sede *StreamExtensionDirectoryEntry) *TreeNode {
	childNode := NewTreeNode(name, isDirectory, fde, sede)

	var list sort.StringSlice
	if isDirectory == true {
		list = tn.childrenFolders
	} else {
		list = tn.childrenFiles
	}

	insertOrEqualAt := list.Search(name)

	if insertOrEqualAt >= len(list) {
		list = append(list, name)
	} else if list[insertOrEqualAt] != name {
		leftHalf := list[:insertOrEqualAt]
		rightHalf := list[insertOrEqualAt:]
		list = append(leftHalf, append([]string{name}, rightHalf...)...)
	}

	if isDirectory == true {
		tn.childrenFolders = list
	} else {
		tn.childrenFiles = list
	}

	tn.childrenMap[name] = childNode

	return childNode
}

// Tree is the full directory hierarchy of a mounted volume.
type Tree struct {
	fs       *ExFat
	rootNode *TreeNode
}

// NewTree returns a new Tree instance over the mounted volume.
func NewTree(fs *ExFat) *Tree {
	return &Tree{
		fs:       fs,
		rootNode: NewTreeNode("", true, nil, nil),
	}
}

// fileEntrySets collects the file entry sets of one directory stream.
func (fs *ExFat) fileEntrySets(firstClusterNumber uint32, useFat bool) (entrySets []EntrySet, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	entrySets = make([]EntrySet, 0)

	err = EnumerateEntrySets(fs.rs, fs.params, fs.fat, firstClusterNumber, useFat, func(es EntrySet) (err error) {
		if _, ok := es.Primary.(*FileDirectoryEntry); ok == true {
			entrySets = append(entrySets, es)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return entrySets, nil
}

func (tree *Tree) loadChildren(entrySets []EntrySet, node *TreeNode) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	for _, es := range entrySets {
		fde := es.Primary.(*FileDirectoryEntry)

		sede := es.StreamExtension()
		if sede == nil {
			return ErrMalformedEntrySet
		}

		isDirectory := fde.FileAttributes.IsDirectory()
		childNode := node.AddChild(es.FileName(), isDirectory, fde, sede)

		// A directory with no allocation yet has a zero first-cluster.
		if isDirectory == true && sede.FirstCluster != 0 {
			useFat := sede.GeneralSecondaryFlags.NoFatChain() == false

			childEntrySets, err := tree.fs.fileEntrySets(sede.FirstCluster, useFat)
			log.PanicIf(err)

			err = tree.loadChildren(childEntrySets, childNode)
			log.PanicIf(err)
		}
	}

	return nil
}

// Load walks the volume from the root directory down and builds the
// tree.
func (tree *Tree) Load() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	err = tree.loadChildren(tree.fs.root.FileEntrySets, tree.rootNode)
	log.PanicIf(err)

	return nil
}

// Lookup descends to the node with the given path parts.
func (tree *Tree) Lookup(pathParts []string) (node *TreeNode) {
	return tree.rootNode.Lookup(pathParts)
}

// TreeVisitorFunc is a visitor callback over every node of the tree.
type TreeVisitorFunc func(pathParts []string, node *TreeNode) (err error)

// Visit calls the given callback for every node, directories first,
// files at the bottom of each level.
func (tree *Tree) Visit(cb TreeVisitorFunc) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	err = tree.visit(make([]string, 0), tree.rootNode, cb)
	log.PanicIf(err)

	return nil
}

func (tree *Tree) visit(pathParts []string, node *TreeNode, cb TreeVisitorFunc) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	err = cb(pathParts, node)
	log.PanicIf(err)

	for _, childFolderName := range node.childrenFolders {
		childNode := node.childrenMap[childFolderName]

		childPathParts := make([]string, len(pathParts)+1)
		copy(childPathParts, pathParts)
		childPathParts[len(childPathParts)-1] = childFolderName

		err := tree.visit(childPathParts, childNode, cb)
		log.PanicIf(err)
	}

	// Do the files all at once, at the bottom.
	for _, childFilename := range node.childrenFiles {
		childNode := node.childrenMap[childFilename]

		childPathParts := make([]string, len(pathParts)+1)
		copy(childPathParts, pathParts)
		childPathParts[len(childPathParts)-1] = childFilename

		err := cb(childPathParts, childNode)
		log.PanicIf(err)
	}

	return nil
}

// List returns the full path of every node, along with a lookup map.
// Paths are joined with Windows-style backslashes.
func (tree *Tree) List() (files []string, nodes map[string]*TreeNode, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	files = make([]string, 0)
	nodes = make(map[string]*TreeNode)

	cb := func(pathParts []string, node *TreeNode) (err error) {
		if len(pathParts) == 0 {
			return nil
		}

		nodePath := strings.Join(pathParts, `\`)

		files = append(files, nodePath)
		nodes[nodePath] = node

		return nil
	}

	err = tree.Visit(cb)
	log.PanicIf(err)

	return files, nodes, nil
}
