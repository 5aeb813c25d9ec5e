package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore maps the tree onto collections: the first path segment is a
// collection, the second a document and anything deeper a field path
// inside that document. ETags are document update times.
type Firestore struct {
	fs *firestore.Client
}

func NewFirestore(fs *firestore.Client) *Firestore {
	return &Firestore{fs: fs}
}

var errStale = errors.New("etag mismatch")

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

type fsPath struct {
	col   string
	doc   string
	field []string
}

func parseFSPath(path string) (fsPath, error) {
	segs, err := Split(path)
	if err != nil {
		return fsPath{}, err
	}
	p := fsPath{col: segs[0]}
	if len(segs) > 1 {
		p.doc = segs[1]
	}
	if len(segs) > 2 {
		p.field = segs[2:]
	}
	return p, nil
}

func (f *Firestore) Get(ctx context.Context, path string) (any, error) {
	v, _, err := f.GetWithETag(ctx, path)
	return v, err
}

func (f *Firestore) GetWithETag(ctx context.Context, path string) (any, string, error) {
	p, err := parseFSPath(path)
	if err != nil {
		return nil, "", err
	}
	if p.doc == "" {
		v, err := f.collection(ctx, p.col)
		return v, ContentETag(v), err
	}

	snap, err := f.fs.Collection(p.col).Doc(p.doc).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("firestore get %s: %w", path, err)
	}
	etag := updateETag(snap)
	var v any = snap.Data()
	for _, s := range p.field {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, etag, nil
		}
		v = m[s]
	}
	return v, etag, nil
}

func (f *Firestore) collection(ctx context.Context, col string) (map[string]any, error) {
	out := map[string]any{}
	it := f.fs.Collection(col).Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore list %s: %w", col, err)
		}
		out[snap.Ref.ID] = snap.Data()
	}
	return out, nil
}

func (f *Firestore) Set(ctx context.Context, path string, v any) error {
	p, err := parseFSPath(path)
	if err != nil {
		return err
	}
	if p.doc == "" {
		return fmt.Errorf("%w: set on collection %s", ErrUnsupported, p.col)
	}
	ref := f.fs.Collection(p.col).Doc(p.doc)
	if len(p.field) > 0 {
		return f.updateFields(ctx, ref, map[string]any{"": v}, p.field)
	}
	m, ok := v.(map[string]any)
	if !ok {
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		if m, ok = nv.(map[string]any); !ok {
			return fmt.Errorf("%w: document %s must be an object", ErrUnsupported, path)
		}
	}
	if _, err := ref.Set(ctx, m); err != nil {
		return fmt.Errorf("firestore set %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, path string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	p, err := parseFSPath(path)
	if err != nil {
		return err
	}
	if p.doc == "" {
		return fmt.Errorf("%w: update on collection %s", ErrUnsupported, p.col)
	}
	return f.updateFields(ctx, f.fs.Collection(p.col).Doc(p.doc), fields, p.field)
}

// updateFields replaces each field wholesale, matching the realtime
// database's update semantics. A missing document is created.
func (f *Firestore) updateFields(ctx context.Context, ref *firestore.DocumentRef, fields map[string]any, prefix []string) error {
	ups := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		fp := append(firestore.FieldPath{}, prefix...)
		if k != "" {
			child, err := Split(k)
			if err != nil {
				return err
			}
			fp = append(fp, child...)
		}
		if v == nil {
			v = firestore.Delete
		}
		ups = append(ups, firestore.Update{FieldPath: fp, Value: v})
	}
	_, err := ref.Update(ctx, ups)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("firestore update %s: %w", ref.Path, err)
	}

	doc := map[string]any{}
	for _, u := range ups {
		if u.Value == firestore.Delete {
			continue
		}
		setNested(doc, u.FieldPath, u.Value)
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore create %s: %w", ref.Path, err)
	}
	return nil
}

func setNested(doc map[string]any, fp firestore.FieldPath, v any) {
	node := doc
	for _, s := range fp[:len(fp)-1] {
		next, ok := node[s].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[s] = next
		}
		node = next
	}
	node[fp[len(fp)-1]] = v
}

func (f *Firestore) SetIfUnchanged(ctx context.Context, path, etag string, v any) (bool, error) {
	p, err := parseFSPath(path)
	if err != nil {
		return false, err
	}
	if p.doc == "" || len(p.field) > 0 {
		return false, fmt.Errorf("%w: conditional set on %s", ErrUnsupported, path)
	}
	m, err := normalize(v)
	if err != nil {
		return false, err
	}
	doc, ok := m.(map[string]any)
	if !ok {
		return false, fmt.Errorf("%w: document %s must be an object", ErrUnsupported, path)
	}

	ref := f.fs.Collection(p.col).Doc(p.doc)
	err = f.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		current := ""
		switch {
		case err == nil:
			current = updateETag(snap)
		case !isNotFound(err):
			return err
		}
		if current != etag {
			return errStale
		}
		return tx.Set(ref, doc)
	})
	if errors.Is(err, errStale) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("firestore conditional set %s: %w", path, err)
	}
	return true, nil
}

func (f *Firestore) Delete(ctx context.Context, path string) error {
	p, err := parseFSPath(path)
	if err != nil {
		return err
	}
	if p.doc == "" {
		return fmt.Errorf("%w: delete collection %s", ErrUnsupported, p.col)
	}
	ref := f.fs.Collection(p.col).Doc(p.doc)
	if len(p.field) > 0 {
		_, err := ref.Update(ctx, []firestore.Update{{FieldPath: firestore.FieldPath(p.field), Value: firestore.Delete}})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("firestore delete field %s: %w", path, err)
		}
		return nil
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete %s: %w", path, err)
	}
	return nil
}

func updateETag(snap *firestore.DocumentSnapshot) string {
	return `"` + strconv.FormatInt(snap.UpdateTime.UnixNano(), 10) + `"`
}
