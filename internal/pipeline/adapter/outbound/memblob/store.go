package memblob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/anthanhphan/statement-pipeline/pkg/shard"
)

var errNoBaseURL = errors.New("memory blob store has no public base url")

type object struct {
	bucket       string
	key          string
	data         []byte
	contentType  string
	cacheControl string
	createdAt    time.Time
}

// Store is an in-process BlobStore for local runs and tests. Signed URLs point at
// Handler, which must be served at the configured base URL.
type Store struct {
	objects    *shard.Map[object]
	signingKey []byte
	now        func() time.Time

	mu      sync.RWMutex
	baseURL string
}

// Ensure Store implements port.BlobStore.
var _ port.BlobStore = (*Store)(nil)

// Option customizes the store.
type Option func(*Store)

// WithClock replaces time.Now for creation times and link expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSigningKey sets the HMAC key for download links.
func WithSigningKey(key string) Option {
	return func(s *Store) { s.signingKey = []byte(key) }
}

// WithBaseURL sets the public URL under which Handler is reachable.
func WithBaseURL(base string) Option {
	return func(s *Store) { s.baseURL = strings.TrimRight(base, "/") }
}

// WithStripes sets the number of lock stripes.
func WithStripes(n int) Option {
	return func(s *Store) { s.objects = shard.NewMap[object](n) }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		objects:    shard.NewMap[object](shard.DefaultStripes),
		signingKey: []byte("local-signing-key"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBaseURL changes the public URL, for servers whose address is known only after start.
func (s *Store) SetBaseURL(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimRight(base, "/")
}

func objectID(bucket, key string) string {
	return bucket + "\x00" + key
}

// Put stores a copy of data. Without opts.Overwrite an existing key is an ErrObjectExists.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, opts port.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	obj := object{
		bucket:       bucket,
		key:          key,
		data:         append([]byte(nil), data...),
		contentType:  opts.ContentType,
		cacheControl: opts.CacheControl,
		createdAt:    s.now().UTC(),
	}

	id := objectID(bucket, key)
	if opts.Overwrite {
		s.objects.Set(id, obj)
		return nil
	}
	if !s.objects.SetIfAbsent(id, obj) {
		return fmt.Errorf("%w: %s/%s", port.ErrObjectExists, bucket, key)
	}
	return nil
}

// Get returns a copy of the object's bytes.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, ok := s.objects.Get(objectID(bucket, key))
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", port.ErrObjectNotFound, bucket, key)
	}
	return append([]byte(nil), obj.data...), nil
}

// List returns every object below prefix, sorted by key.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]port.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []port.ObjectInfo
	s.objects.Range(func(_ string, obj object) bool {
		if obj.bucket == bucket && strings.HasPrefix(obj.key, prefix) {
			out = append(out, port.ObjectInfo{Key: obj.key, Size: int64(len(obj.data)), CreatedAt: obj.createdAt})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ListFolders returns the distinct sub-folders directly below prefix, each ending in "/".
func (s *Store) ListFolders(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	s.objects.Range(func(_ string, obj object) bool {
		if obj.bucket != bucket || !strings.HasPrefix(obj.key, prefix) {
			return true
		}
		rest := obj.key[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			seen[prefix+rest[:i+1]] = struct{}{}
		}
		return true
	})

	out := make([]string, 0, len(seen))
	for folder := range seen {
		out = append(out, folder)
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes keys. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, bucket string, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		s.objects.Delete(objectID(bucket, key))
	}
	return nil
}

// SignedURL returns an HMAC-signed link to Handler valid for ttl.
func (s *Store) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	base := s.baseURL
	s.mu.RUnlock()
	if base == "" {
		return "", errNoBaseURL
	}

	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.sign(bucket, key, expires))
	return base + "/" + escapePath(bucket) + "/" + escapePath(key) + "?" + q.Encode(), nil
}

func (s *Store) sign(bucket, key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	_, _ = fmt.Fprintf(mac, "%s/%s\n%d", bucket, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// Handler serves objects addressed by signed links. mountPath is the URL path
// prefix the handler is mounted at, for example "/blobs".
func (s *Store) Handler(mountPath string) http.Handler {
	mountPath = strings.TrimRight(mountPath, "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rest := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, mountPath), "/")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			http.NotFound(w, r)
			return
		}

		expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
		if err != nil {
			http.Error(w, "missing expiry", http.StatusForbidden)
			return
		}
		want := s.sign(bucket, key, expires)
		if !hmac.Equal([]byte(want), []byte(r.URL.Query().Get("signature"))) {
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
		if s.now().Unix() > expires {
			http.Error(w, "link expired", http.StatusForbidden)
			return
		}

		obj, found := s.objects.Get(objectID(bucket, key))
		if !found {
			http.NotFound(w, r)
			return
		}

		contentType := obj.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		if obj.cacheControl != "" {
			w.Header().Set("Cache-Control", "max-age="+obj.cacheControl)
		}
		if r.Method == http.MethodHead {
			return
		}
		if _, err := w.Write(obj.data); err != nil {
			logger.Debugw("Blob response write failed", "bucket", bucket, "key", key, "error", err.Error())
		}
	})
}
