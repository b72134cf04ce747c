package pathstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/protoseg/internal/protocol"
)

const source = "protoseg"

var (
	nonSlug   = regexp.MustCompile(`[^a-z0-9-]`)
	dashRuns  = regexp.MustCompile(`-+`)
	keyDelims = func(r rune) bool { return r == '/' || r == '.' }
)

// Store keeps segmented protocols in pathstore under a key prefix:
//
//	{prefix}/docs/{doc_id}                       full document
//	{prefix}/docs/{doc_id}/sections/{slug}       one node per section
//	{prefix}/by_hash/{content_hash}/{doc_id}     dedup index
type Store struct {
	client *Client
	prefix string
}

// NewStore wraps a client. An empty prefix defaults to "protocols".
func NewStore(client *Client, prefix string) *Store {
	if prefix == "" {
		prefix = "protocols"
	}
	return &Store{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

func (s *Store) docKey(id string) string { return s.prefix + "/docs/" + id }

func (s *Store) hashKey(hash string) string { return s.prefix + "/by_hash/" + hash }

// Save writes the document, its section nodes and the hash index entry.
func (s *Store) Save(ctx context.Context, doc *protocol.Document) error {
	key := s.docKey(doc.DocID)
	if err := s.client.PutNode(ctx, key, NodeRequest{Value: doc, Source: source}); err != nil {
		return fmt.Errorf("save protocol %s: %w", doc.DocID, err)
	}

	if doc.Sections != nil {
		for _, rec := range doc.Sections.Sections {
			if !rec.Found {
				continue
			}
			secKey := key + "/sections/" + Slugify(rec.Name)
			err := s.client.PutNode(ctx, secKey, NodeRequest{
				Value: map[string]any{
					"name":            rec.Name,
					"record":          rec,
					"drug_name":       doc.DrugName,
					"protocol_number": doc.Number,
				},
				Source: source,
			})
			if err != nil {
				return fmt.Errorf("save section %q: %w", rec.Name, err)
			}
			err = s.client.PutLink(ctx, LinkRequest{From: key, To: secKey, Weight: 1, Summary: rec.Name})
			if err != nil {
				return fmt.Errorf("link section %q: %w", rec.Name, err)
			}
		}
	}

	err := s.client.PutNode(ctx, s.hashKey(doc.ContentHash)+"/"+doc.DocID, NodeRequest{
		Value: map[string]any{
			"protocol_source": doc.Source,
			"created_at":      doc.CreatedAt,
		},
		Source: source,
	})
	if err != nil {
		return fmt.Errorf("save hash index: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, docID string) (*protocol.Document, error) {
	node, err := s.client.GetNode(ctx, s.docKey(docID))
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, protocol.ErrNotFound
	}
	var doc protocol.Document
	if err := json.Unmarshal(node.Value, &doc); err != nil {
		return nil, fmt.Errorf("decode protocol %s: %w", docID, err)
	}
	return &doc, nil
}

func (s *Store) FindByHash(ctx context.Context, hash string) (string, bool, error) {
	children, err := s.client.ListChildren(ctx, s.hashKey(hash), 1)
	if err != nil {
		return "", false, err
	}
	if len(children) == 0 {
		return "", false, nil
	}
	// Keys come back either slash- or dot-separated; the doc id is last.
	parts := strings.FieldsFunc(children[0].Key, keyDelims)
	if len(parts) == 0 {
		return "", false, nil
	}
	return parts[len(parts)-1], true, nil
}

// Delete removes the document, its sections and its hash index entry.
func (s *Store) Delete(ctx context.Context, docID string) error {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return err
	}
	if err := s.client.DeleteNode(ctx, s.docKey(docID), true); err != nil {
		return fmt.Errorf("delete protocol %s: %w", docID, err)
	}
	if err := s.client.DeleteNode(ctx, s.hashKey(doc.ContentHash)+"/"+docID, false); err != nil {
		return fmt.Errorf("delete hash index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// Slugify turns a section name into a single key segment.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonSlug.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}
