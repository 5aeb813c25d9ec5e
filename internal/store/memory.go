package store

import (
	"context"
	"sync"
)

// Memory is an in-process Tree for tests and local runs.
type Memory struct {
	mu   sync.RWMutex
	root map[string]any
}

func NewMemory() *Memory {
	return &Memory{root: map[string]any{}}
}

// Seed replaces the node at path without validation of the value shape.
func (m *Memory) Seed(path string, v any) error {
	return m.Set(context.Background(), path, v)
}

func (m *Memory) Get(ctx context.Context, path string) (any, error) {
	v, _, err := m.GetWithETag(ctx, path)
	return v, err
}

func (m *Memory) GetWithETag(_ context.Context, path string) (any, string, error) {
	segs, err := Split(path)
	if err != nil {
		return nil, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := m.lookup(segs)
	out, err := normalize(v)
	if err != nil {
		return nil, "", err
	}
	return out, ContentETag(out), nil
}

func (m *Memory) Set(_ context.Context, path string, v any) error {
	segs, err := Split(path)
	if err != nil {
		return err
	}
	nv, err := normalize(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(segs, nv)
	return nil
}

func (m *Memory) Update(_ context.Context, path string, fields map[string]any) error {
	segs, err := Split(path)
	if err != nil {
		return err
	}
	type change struct {
		segs []string
		v    any
	}
	changes := make([]change, 0, len(fields))
	for k, v := range fields {
		child, err := Split(k)
		if err != nil {
			return err
		}
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		full := append(append([]string{}, segs...), child...)
		changes = append(changes, change{segs: full, v: nv})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range changes {
		m.put(c.segs, c.v)
	}
	return nil
}

func (m *Memory) SetIfUnchanged(_ context.Context, path, etag string, v any) (bool, error) {
	segs, err := Split(path)
	if err != nil {
		return false, err
	}
	nv, err := normalize(v)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := normalize(m.lookup(segs))
	if err != nil {
		return false, err
	}
	if ContentETag(cur) != etag {
		return false, nil
	}
	m.put(segs, nv)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	segs, err := Split(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(segs, nil)
	return nil
}

// lookup walks the tree; callers hold the lock.
func (m *Memory) lookup(segs []string) any {
	var cur any = m.root
	for _, s := range segs {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = node[s]
		if !ok {
			return nil
		}
	}
	return cur
}

// put writes v at segs, creating parents. nil deletes, and parents left
// empty are pruned the way the realtime database does.
func (m *Memory) put(segs []string, v any) {
	if empty(v) {
		m.remove(m.root, segs)
		return
	}
	node := m.root
	for _, s := range segs[:len(segs)-1] {
		next, ok := node[s].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[s] = next
		}
		node = next
	}
	node[segs[len(segs)-1]] = v
}

func (m *Memory) remove(node map[string]any, segs []string) bool {
	if len(segs) == 1 {
		delete(node, segs[0])
		return len(node) == 0
	}
	child, ok := node[segs[0]].(map[string]any)
	if !ok {
		return len(node) == 0
	}
	if m.remove(child, segs[1:]) {
		delete(node, segs[0])
	}
	return len(node) == 0
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// Dump returns a copy of the whole tree, keyed by top-level name.
func (m *Memory) Dump() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out, _ := normalize(m.root)
	if mm, ok := out.(map[string]any); ok {
		return mm
	}
	return map[string]any{}
}
