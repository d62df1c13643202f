package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/hookbus"
	"github.com/fyrsmithlabs/vcond/internal/search"
	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/tags"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

// recordSummary is the compact mutation result: enough for the caller
// to address sub-collection positions without re-fetching the record.
type recordSummary struct {
	UUID        string `json:"uuid"`
	Subject     string `json:"subject,omitempty"`
	Parties     int    `json:"parties"`
	Dialog      int    `json:"dialog"`
	Analysis    int    `json:"analysis"`
	Attachments int    `json:"attachments"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func summarize(rec *vcon.Vcon) recordSummary {
	return recordSummary{
		UUID:        rec.UUID,
		Subject:     rec.Subject,
		Parties:     len(rec.Parties),
		Dialog:      len(rec.Dialog),
		Analysis:    len(rec.Analysis),
		Attachments: len(rec.Attachments),
		UpdatedAt:   rec.UpdatedAt,
	}
}

func callerContext(tool string) *hookbus.RequestContext {
	return &hookbus.RequestContext{Caller: "mcp:" + tool}
}

func (s *Server) registerTools() {
	s.registerLifecycleTools()
	s.registerTagTools()
	s.registerSearchTools()
}

type createVconInput struct {
	Record vcon.Vcon `json:"record" jsonschema:"the conversation record; uuid and timestamps are assigned when absent"`
}

type createVconOutput struct {
	UUID      string `json:"uuid"`
	CreatedAt string `json:"created_at"`
}

type uuidInput struct {
	UUID string `json:"uuid"`
}

type recordOutput struct {
	Record *vcon.Vcon `json:"record"`
}

type addPartyInput struct {
	UUID  string     `json:"uuid"`
	Party vcon.Party `json:"party"`
}

type addDialogInput struct {
	UUID   string      `json:"uuid"`
	Dialog vcon.Dialog `json:"dialog"`
}

type addAnalysisInput struct {
	UUID     string        `json:"uuid"`
	Analysis vcon.Analysis `json:"analysis"`
}

type addAttachmentInput struct {
	UUID       string          `json:"uuid"`
	Attachment vcon.Attachment `json:"attachment"`
}

type removeInput struct {
	UUID  string `json:"uuid"`
	Index int    `json:"index" jsonschema:"zero-based position in the collection"`
}

type deleteOutput struct {
	UUID    string `json:"uuid"`
	Deleted bool   `json:"deleted"`
}

func (s *Server) applyOp(ctx context.Context, tool, uuid string, op vcon.SubOp) (recordSummary, error) {
	rec, err := s.svc.Update(ctx, callerContext(tool), uuid, []vcon.SubOp{op})
	if err != nil {
		return recordSummary{}, err
	}
	return summarize(rec), nil
}

func (s *Server) registerLifecycleTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_vcon",
		Description: "Create a conversation record; identity and timestamps are assigned server-side",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args createVconInput) (*mcp.CallToolResult, createVconOutput, error) {
		rec, err := s.svc.Create(ctx, callerContext("create_vcon"), &args.Record)
		if err != nil {
			return nil, createVconOutput{}, err
		}
		return nil, createVconOutput{UUID: rec.UUID, CreatedAt: rec.CreatedAt}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_vcon",
		Description: "Fetch a conversation record by UUID",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args uuidInput) (*mcp.CallToolResult, recordOutput, error) {
		rec, err := s.svc.Get(ctx, callerContext("get_vcon"), args.UUID)
		if err != nil {
			return nil, recordOutput{}, err
		}
		return nil, recordOutput{Record: rec}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_party",
		Description: "Append a party to a record",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addPartyInput) (*mcp.CallToolResult, recordSummary, error) {
		out, err := s.applyOp(ctx, "add_party", args.UUID, vcon.SubOp{
			Collection: vcon.CollectionParties, Kind: vcon.OpAdd, Party: &args.Party,
		})
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_dialog",
		Description: "Append a dialog entry (recording, text, transfer, or incomplete) to a record",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addDialogInput) (*mcp.CallToolResult, recordSummary, error) {
		out, err := s.applyOp(ctx, "add_dialog", args.UUID, vcon.SubOp{
			Collection: vcon.CollectionDialog, Kind: vcon.OpAdd, Dialog: &args.Dialog,
		})
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_analysis",
		Description: "Append an analysis entry to a record; vendor is mandatory",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addAnalysisInput) (*mcp.CallToolResult, recordSummary, error) {
		out, err := s.applyOp(ctx, "add_analysis", args.UUID, vcon.SubOp{
			Collection: vcon.CollectionAnalysis, Kind: vcon.OpAdd, Analysis: &args.Analysis,
		})
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_attachment",
		Description: "Append an attachment to a record",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addAttachmentInput) (*mcp.CallToolResult, recordSummary, error) {
		out, err := s.applyOp(ctx, "add_attachment", args.UUID, vcon.SubOp{
			Collection: vcon.CollectionAttachments, Kind: vcon.OpAdd, Attachment: &args.Attachment,
		})
		return nil, out, err
	})

	removals := []struct {
		tool       string
		desc       string
		collection vcon.Collection
	}{
		{"remove_party", "Remove the party at the given position", vcon.CollectionParties},
		{"remove_dialog", "Remove the dialog entry at the given position", vcon.CollectionDialog},
		{"remove_analysis", "Remove the analysis entry at the given position", vcon.CollectionAnalysis},
		{"remove_attachment", "Remove the attachment at the given position", vcon.CollectionAttachments},
	}
	for _, r := range removals {
		r := r
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        r.tool,
			Description: r.desc,
		}, func(ctx context.Context, req *mcp.CallToolRequest, args removeInput) (*mcp.CallToolResult, recordSummary, error) {
			out, err := s.applyOp(ctx, r.tool, args.UUID, vcon.SubOp{
				Collection: r.collection, Kind: vcon.OpRemove, Index: args.Index,
			})
			return nil, out, err
		})
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_vcon",
		Description: "Delete a record and everything derived from it, embeddings included",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args uuidInput) (*mcp.CallToolResult, deleteOutput, error) {
		if err := s.svc.Delete(ctx, callerContext("delete_vcon"), args.UUID); err != nil {
			return nil, deleteOutput{}, err
		}
		return nil, deleteOutput{UUID: args.UUID, Deleted: true}, nil
	})
}

type setTagsInput struct {
	UUID string         `json:"uuid"`
	Tags map[string]any `json:"tags" jsonschema:"tag values may be strings, numbers, or booleans"`
}

type tagsOutput struct {
	UUID string         `json:"uuid"`
	Tags map[string]any `json:"tags"`
}

type deleteTagInput struct {
	UUID string `json:"uuid"`
	Key  string `json:"key"`
}

func (s *Server) registerTagTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "set_tags",
		Description: "Merge tags into a record, last write wins per key; returns the full tag set",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args setTagsInput) (*mcp.CallToolResult, tagsOutput, error) {
		merged, err := s.svc.SetTags(ctx, callerContext("set_tags"), args.UUID, args.Tags)
		if err != nil {
			return nil, tagsOutput{}, err
		}
		return nil, tagsOutput{UUID: args.UUID, Tags: merged}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_tags",
		Description: "Read a record's tag set with typed values",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args uuidInput) (*mcp.CallToolResult, tagsOutput, error) {
		set, err := s.svc.GetTags(ctx, callerContext("get_tags"), args.UUID)
		if err != nil {
			return nil, tagsOutput{}, err
		}
		return nil, tagsOutput{UUID: args.UUID, Tags: set}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_tag",
		Description: "Remove one tag key from a record; removing an absent key is a no-op",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args deleteTagInput) (*mcp.CallToolResult, tagsOutput, error) {
		if err := s.svc.DeleteTag(ctx, callerContext("delete_tag"), args.UUID, args.Key); err != nil {
			return nil, tagsOutput{}, err
		}
		set, err := s.svc.GetTags(ctx, callerContext("delete_tag"), args.UUID)
		if err != nil {
			return nil, tagsOutput{}, err
		}
		return nil, tagsOutput{UUID: args.UUID, Tags: set}, nil
	})
}

type searchInput struct {
	Mode string `json:"mode" jsonschema:"one of filter, fulltext, vector, hybrid"`

	// Query is the text for fulltext, vector, and hybrid modes.
	Query string `json:"query,omitempty"`

	// Filter-mode predicates.
	SubjectContains string `json:"subject_contains,omitempty"`
	PartyContact    string `json:"party_contact,omitempty"`
	Sort            string `json:"sort,omitempty" jsonschema:"newest_first, oldest_first, or subject"`

	MinRank  float64  `json:"min_rank,omitempty"`
	MinScore float32  `json:"min_score,omitempty"`
	Weight   *float64 `json:"weight,omitempty" jsonschema:"semantic share of the hybrid score, 0 to 1"`

	Tags    map[string]any `json:"tags,omitempty"`
	TagMode string         `json:"tag_mode,omitempty" jsonschema:"all, any, or exact"`
	Since   string         `json:"since,omitempty" jsonschema:"RFC 3339 lower bound on created_at"`
	Until   string         `json:"until,omitempty" jsonschema:"RFC 3339 upper bound on created_at"`
	Limit   int            `json:"limit,omitempty"`
}

type searchByTagsInput struct {
	Tags  map[string]any `json:"tags"`
	Mode  string         `json:"mode,omitempty" jsonschema:"all, any, or exact; default all"`
	Limit int            `json:"limit,omitempty"`
}

type searchOutput struct {
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

func (s *Server) registerSearchTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_vcons",
		Description: "Search records by structured filter, full-text relevance, vector similarity, or a weighted hybrid of the latter two",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
		q, err := s.buildQuery(ctx, args)
		if err != nil {
			return nil, searchOutput{}, err
		}
		results, err := s.svc.Search(ctx, callerContext("search_vcons"), q)
		if err != nil {
			return nil, searchOutput{}, err
		}
		return nil, searchOutput{Results: results, Count: len(results)}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_by_tags",
		Description: "Find records by tag predicate alone",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchByTagsInput) (*mcp.CallToolResult, searchOutput, error) {
		results, err := s.svc.SearchByTags(ctx, callerContext("search_by_tags"),
			args.Tags, tags.MatchMode(args.Mode), args.Limit)
		if err != nil {
			return nil, searchOutput{}, err
		}
		return nil, searchOutput{Results: results, Count: len(results)}, nil
	})
}

// buildQuery maps the wire-level search input onto the engine's typed
// query. Vector and hybrid modes embed the query text here, outside the
// engine, so the engine never calls a model.
func (s *Server) buildQuery(ctx context.Context, args searchInput) (search.Query, error) {
	opts, err := buildOptions(args)
	if err != nil {
		return search.Query{}, err
	}

	switch search.Mode(args.Mode) {
	case search.ModeFilter:
		return search.NewFilterQuery(search.FilterParams{
			SubjectContains: args.SubjectContains,
			PartyContact:    args.PartyContact,
			Sort:            store.SortKey(args.Sort),
		}, opts), nil

	case search.ModeFullText:
		return search.NewFullTextQuery(search.FullTextParams{
			Text:    args.Query,
			MinRank: args.MinRank,
		}, opts), nil

	case search.ModeVector:
		if s.embedder == nil {
			return search.Query{}, fmt.Errorf("%w: vector search needs an embedding model", store.ErrInvalidParams)
		}
		emb, embErr := s.embedder.EmbedQuery(ctx, args.Query)
		if embErr != nil {
			return search.Query{}, fmt.Errorf("embedding query: %w", embErr)
		}
		return search.NewVectorQuery(search.VectorParams{
			Embedding: emb,
			MinScore:  args.MinScore,
		}, opts), nil

	case search.ModeHybrid:
		p := search.HybridParams{
			FullText: search.FullTextParams{Text: args.Query, MinRank: args.MinRank},
			Weight:   args.Weight,
		}
		if s.embedder != nil {
			emb, embErr := s.embedder.EmbedQuery(ctx, args.Query)
			if embErr != nil {
				// Keyword-only beats failing the whole search.
				s.logger.Warn("query embedding failed, degrading hybrid to keyword-only", zap.Error(embErr))
			} else {
				p.Vector = &search.VectorParams{Embedding: emb, MinScore: args.MinScore}
			}
		}
		return search.NewHybridQuery(p, opts), nil

	default:
		return search.Query{}, fmt.Errorf("%w: unknown search mode %q", store.ErrInvalidParams, args.Mode)
	}
}

func buildOptions(args searchInput) (search.Options, error) {
	opts := search.Options{
		Tags:    args.Tags,
		TagMode: tags.MatchMode(args.TagMode),
		Limit:   args.Limit,
	}
	if args.TagMode != "" && !opts.TagMode.Valid() {
		return search.Options{}, fmt.Errorf("%w: unknown tag match mode %q", store.ErrInvalidParams, args.TagMode)
	}
	if args.Since != "" {
		ts, err := time.Parse(time.RFC3339, args.Since)
		if err != nil {
			return search.Options{}, fmt.Errorf("%w: since must be RFC 3339", store.ErrInvalidParams)
		}
		opts.Since = ts
	}
	if args.Until != "" {
		ts, err := time.Parse(time.RFC3339, args.Until)
		if err != nil {
			return search.Options{}, fmt.Errorf("%w: until must be RFC 3339", store.ErrInvalidParams)
		}
		opts.Until = ts
	}
	return opts, nil
}
