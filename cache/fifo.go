package cache

// fifoNode is a node in a doubly-linked insertion-order list.
// The node stores a key for O(1) deletion from the parent map.
type fifoNode struct {
	key  string
	prev *fifoNode
	next *fifoNode
}

// fifoList is a doubly-linked list ordered by insertion time. The head
// is the newest entry, the tail the oldest. Unlike an LRU list, lookups
// never reorder nodes: eviction is strictly oldest-inserted-first.
// The list is not thread-safe; callers must handle synchronization.
type fifoList struct {
	head *fifoNode
	tail *fifoNode
	len  int
}

// Len returns the number of nodes in the list.
func (l *fifoList) Len() int {
	return l.len
}

// PushFront adds a new node at the front (newest).
// Returns the created node for later access.
func (l *fifoList) PushFront(key string) *fifoNode {
	node := &fifoNode{key: key}
	if l.head == nil {
		l.head = node
		l.tail = node
	} else {
		node.next = l.head
		l.head.prev = node
		l.head = node
	}
	l.len++
	return node
}

// Remove removes a node from the list.
func (l *fifoList) Remove(node *fifoNode) {
	if node == nil {
		return
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	l.len--
}

// RemoveOldest removes and returns the key of the oldest node.
// Returns false if the list is empty.
func (l *fifoList) RemoveOldest() (string, bool) {
	if l.tail == nil {
		return "", false
	}
	node := l.tail
	l.Remove(node)
	return node.key, true
}

// Clear removes all nodes from the list.
func (l *fifoList) Clear() {
	l.head = nil
	l.tail = nil
	l.len = 0
}
