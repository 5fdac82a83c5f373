package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/doc-intake/internal/classify"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/dates"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
	"github.com/joseph-ayodele/doc-intake/internal/jobstate"
	"github.com/joseph-ayodele/doc-intake/internal/llm"
	"github.com/joseph-ayodele/doc-intake/internal/ocr"
)

func (o *Orchestrator) ocrStage(ctx context.Context, job *entity.Job, ph jobstate.InOCR, log *slog.Logger) (jobstate.Phase, error) {
	if ph.Carried != nil {
		log.Info("pipeline.ocr.reuse", "engine", ph.Carried.Engine, "chars", len(ph.Carried.Text))
		return jobstate.InExtract{OCR: *ph.Carried}, nil
	}

	var doc ocr.Document
	err := common.Retry(ctx, o.retry, func(ctx context.Context) error {
		d, err := o.docs.Load(ctx, job)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	res, err := o.text.ExtractText(ctx, doc)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		log.Debug("pipeline.ocr.warning", "engine", res.EngineUsed, "warning", w)
	}
	return jobstate.InExtract{OCR: jobstate.OCROutput{
		Text:      res.Text,
		PageCount: res.PageCount,
		Engine:    res.EngineUsed,
	}}, nil
}

func (o *Orchestrator) classifyStage(ph jobstate.InExtract, log *slog.Logger) (jobstate.Phase, error) {
	if ph.Carried != nil {
		log.Info("pipeline.classify.reuse", "doc_type", ph.Carried.DocType)
		return jobstate.InSummarise{OCR: ph.OCR, Class: *ph.Carried}, nil
	}
	res := o.classifier.Classify(classify.PagesFromText(ph.OCR.Text))
	log.Debug("pipeline.classify.scores", "doc_type", res.Type, "confidence", res.Confidence, "scores", res.Scores)
	return jobstate.InSummarise{OCR: ph.OCR, Class: jobstate.Classification{
		DocType:        res.Type,
		Confidence:     res.Confidence,
		RuleSetVersion: res.RuleSetVersion,
	}}, nil
}

func (o *Orchestrator) summariseStage(ctx context.Context, job *entity.Job, ph jobstate.InSummarise, log *slog.Logger) (jobstate.Phase, error) {
	hints := hintsFor(job, ph.OCR.Text)
	ext := o.fields.ExtractStructured(ctx, ph.OCR.Text, ph.Class.DocType, hints)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	summary, err := ext.Result.JSON()
	if err != nil {
		return nil, err
	}
	if !ext.Recovered() {
		log.Warn("pipeline.summarise.default", "req_id", ext.ReqID, "blocking_issues", ext.Result.BlockingIssues)
	}
	return jobstate.Ready{
		OCR:   ph.OCR,
		Class: ph.Class,
		AI: jobstate.AIOutput{
			Summary:          summary,
			Model:            ext.Usage.Model,
			PromptTokens:     ext.Usage.PromptTokens,
			CompletionTokens: ext.Usage.CompletionTokens,
			LatencyMS:        ext.Usage.LatencyMS,
		},
	}, nil
}

func hintsFor(job *entity.Job, text string) llm.Hints {
	h := llm.Hints{
		Filename: strings.TrimSpace(job.Filename),
		Dates:    dates.Find(text),
	}
	if job.BuildingID != nil {
		h.Building = job.BuildingID.String()
	}
	if job.UnitID != nil {
		h.Unit = job.UnitID.String()
	}
	return h
}
