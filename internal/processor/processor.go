// Package processor turns a storage event into an Image Record:
// download, describe, embed, insert. Steps run strictly in order; only the
// embedding step may fail without aborting.
package processor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/notes-bin/aigallery/internal/inference"
	"github.com/notes-bin/aigallery/internal/model"
	"github.com/notes-bin/aigallery/internal/records"
	"github.com/notes-bin/aigallery/internal/storage"
)

type Step string

const (
	StepOwner    Step = "resolve_owner"
	StepDownload Step = "download"
	StepEncode   Step = "encode"
	StepAnalyze  Step = "analyze"
	StepEmbed    Step = "embed"
	StepInsert   Step = "insert"
)

// StepError reports the step that aborted the pipeline.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

type Processor struct {
	objects storage.Store
	records records.Store
	gateway inference.Gateway
	log     *slog.Logger
}

func New(objects storage.Store, records records.Store, gateway inference.Gateway, log *slog.Logger) *Processor {
	return &Processor{objects: objects, records: records, gateway: gateway, log: log}
}

// job carries each step's result to the next.
type job struct {
	event     storage.Event
	owner     string
	object    *storage.Object
	mimeType  string
	analysis  *inference.Analysis
	embedding []float32
	row       *model.Image
}

type step struct {
	name      Step
	run       func(ctx context.Context, j *job) error
	tolerated bool
}

func (p *Processor) pipeline() []step {
	return []step{
		{name: StepOwner, run: p.resolveOwner},
		{name: StepDownload, run: p.download},
		{name: StepEncode, run: p.encode},
		{name: StepAnalyze, run: p.analyze},
		{name: StepEmbed, run: p.embed, tolerated: true},
		{name: StepInsert, run: p.insert},
	}
}

// Process runs the pipeline for one stored object and returns the inserted row.
func (p *Processor) Process(ctx context.Context, ev storage.Event) (*model.Image, error) {
	j := &job{event: ev}
	log := p.log.With("path", ev.Record.Name, "bucket", ev.Record.BucketID)

	for _, s := range p.pipeline() {
		err := s.run(ctx, j)
		if err == nil {
			continue
		}
		if s.tolerated {
			log.Warn("Step failed, continuing without its result", "step", s.name, "error", err)
			continue
		}
		log.Error("Processing aborted", "step", s.name, "error", err)
		return nil, &StepError{Step: s.name, Err: err}
	}

	log.Info("Image processed", "id", j.row.ID, "has_embedding", j.row.Embedding != nil)
	return j.row, nil
}

func (p *Processor) resolveOwner(_ context.Context, j *job) error {
	j.owner = model.OwnerFromPath(j.event.Record.Name)
	if j.owner == "" {
		return fmt.Errorf("path %q has no owner segment", j.event.Record.Name)
	}
	return nil
}

func (p *Processor) download(ctx context.Context, j *job) error {
	if bucket := j.event.Record.BucketID; bucket != "" && bucket != p.objects.Bucket() {
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	obj, err := p.objects.Get(ctx, j.event.Record.Name)
	if err != nil {
		return err
	}
	if len(obj.Data) == 0 {
		return errors.New("object is empty")
	}
	j.object = obj
	return nil
}

func (p *Processor) encode(_ context.Context, j *job) error {
	mimeType := j.object.ContentType
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(j.object.Data[:min(len(j.object.Data), 512)])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}
	j.mimeType = mimeType
	p.log.Debug("Encoded image for inference",
		"path", j.event.Record.Name,
		"mime", mimeType,
		"base64_bytes", base64.StdEncoding.EncodedLen(len(j.object.Data)))
	return nil
}

func (p *Processor) analyze(ctx context.Context, j *job) error {
	a, err := p.gateway.AnalyzeImage(ctx, j.object.Data, j.mimeType)
	if err != nil {
		return err
	}
	if strings.TrimSpace(a.Description) == "" {
		return errors.New("vision model returned no description")
	}
	j.analysis = a
	return nil
}

func (p *Processor) embed(ctx context.Context, j *job) error {
	vec, err := p.gateway.Embed(ctx, j.analysis.Description)
	if err != nil {
		return err
	}
	j.embedding = vec
	return nil
}

func (p *Processor) insert(ctx context.Context, j *job) error {
	description := j.analysis.Description
	row, err := p.records.Insert(ctx, &model.Image{
		UserID:       j.owner,
		FilePath:     j.event.Record.Name,
		FileName:     model.FileNameFromPath(j.event.Record.Name),
		Description:  &description,
		ColorPalette: j.analysis.Colors,
		Embedding:    j.embedding,
	})
	if err != nil {
		return err
	}
	j.row = row
	return nil
}
