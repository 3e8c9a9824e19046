package searchindex

import "github.com/cespare/xxhash/v2"

// trieNode is one node of the word trie. Full tokens are hashed with
// xxhash to key their postings set; the trie itself is walked
// character-by-character so prefix queries (not just exact tokens)
// can be answered by collecting every posting in the matched
// subtree.
type trieNode struct {
	children map[byte]*trieNode
	postings map[uint64]map[string]bool // tokenHash -> entry IDs ending exactly here
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[byte]*trieNode)}
}

// wordTrie maps folded word tokens to the IDs of entries containing
// them.
type wordTrie struct {
	root *trieNode
}

func newWordTrie() *wordTrie {
	return &wordTrie{root: newTrieNode()}
}

func tokenHash(token string) uint64 {
	return xxhash.Sum64String(token)
}

// Add indexes token as occurring in entry id.
func (t *wordTrie) Add(token string, id string) {
	n := t.root
	for i := 0; i < len(token); i++ {
		b := token[i]
		child, ok := n.children[b]
		if !ok {
			child = newTrieNode()
			n.children[b] = child
		}
		n = child
	}
	if n.postings == nil {
		n.postings = make(map[uint64]map[string]bool)
	}
	h := tokenHash(token)
	set, ok := n.postings[h]
	if !ok {
		set = make(map[string]bool)
		n.postings[h] = set
	}
	set[id] = true
}

// Remove drops entry id's association with token.
func (t *wordTrie) Remove(token string, id string) {
	n := t.root
	for i := 0; i < len(token); i++ {
		child, ok := n.children[token[i]]
		if !ok {
			return
		}
		n = child
	}
	if n.postings == nil {
		return
	}
	h := tokenHash(token)
	if set, ok := n.postings[h]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(n.postings, h)
		}
	}
}

// SearchPrefix returns the set of entry IDs having a token that begins
// with prefix. Token coverage for ranking is counted by the caller,
// Index.Find.
func (t *wordTrie) SearchPrefix(prefix string) map[string]bool {
	n := t.root
	for i := 0; i < len(prefix); i++ {
		child, ok := n.children[prefix[i]]
		if !ok {
			return nil
		}
		n = child
	}
	out := make(map[string]bool)
	collect(n, out)
	return out
}

func collect(n *trieNode, out map[string]bool) {
	for _, set := range n.postings {
		for id := range set {
			out[id] = true
		}
	}
	for _, child := range n.children {
		collect(child, out)
	}
}
